// Package hierarchy implements the two-phase reconstruction pipeline that
// assigns parent_task_id to orphan skeletons by matching each child's
// opening text against the radix instruction index.
package hierarchy

import (
	"context"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"

	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/internal/parser"
	"github.com/taskindex/taskindex/internal/radix"
	"github.com/taskindex/taskindex/internal/skeleton"
	"github.com/taskindex/taskindex/pkg/logger"
)

// DefaultDeadline bounds one reconstruction invocation end to end.
const DefaultDeadline = 300 * time.Second

// Report is the outcome of one reconstruction invocation, partial or
// complete.
type Report struct {
	RunID            string
	Phase1Processed  int
	Phase1Extracted  int
	Phase2Resolved   int
	Phase2Unresolved int
	ResolvedTaskIDs  []core.TaskId
	TimeoutReached   bool
}

// Engine drives Phase 1 (prefix materialization) and Phase 2 (strict
// resolution) over a Store's skeletons.
type Engine struct {
	fs           afero.Fs
	store        *skeleton.Store
	index        *radix.Index
	prefixLength int
	clock        core.Clock
	log          logger.Logger
}

// New builds an Engine. prefixLength <= 0 falls back to
// parser.DefaultPrefixLength. fs backs Phase 1's reparse of a skeleton's
// raw source files; a nil fs disables reparsing (Phase 1 then marks every
// not-yet-completed skeleton complete without extracting anything).
func New(fs afero.Fs, store *skeleton.Store, index *radix.Index, prefixLength int, clock core.Clock, log logger.Logger) *Engine {
	if prefixLength <= 0 {
		prefixLength = parser.DefaultPrefixLength
	}
	if clock == nil {
		clock = core.SystemClock
	}
	if log == nil {
		log = logger.FromContext(context.Background())
	}
	return &Engine{fs: fs, store: store, index: index, prefixLength: prefixLength, clock: clock, log: log}
}

// Reconstruct runs Phase 1 then Phase 2, checking the deadline at four
// checkpoints: before Phase 1, before the Phase 2 index rebuild, before
// the Phase 2 loop that resolves and persists parent links, and after it
// (the loop also checks it before each child). Past the deadline at any
// checkpoint, it stops and returns a partial Report with TimeoutReached =
// true. Re-invocation is safe: Phase1Completed/Phase2Completed flags and
// any parent links already committed are preserved.
func (e *Engine) Reconstruct(ctx context.Context, deadline time.Duration) Report {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	runID := ksuid.New().String()
	log := e.log.With("run_id", runID)
	deadlineAt := e.clock.Now().Add(deadline)
	report := Report{RunID: runID}

	if e.pastDeadline(deadlineAt) {
		report.TimeoutReached = true
		return report
	}
	processed, extracted := e.phase1(ctx, log)
	report.Phase1Processed = processed
	report.Phase1Extracted = extracted

	if e.pastDeadline(deadlineAt) {
		report.TimeoutReached = true
		return report
	}
	e.rebuildIndex()

	if e.pastDeadline(deadlineAt) {
		report.TimeoutReached = true
		return report
	}
	resolved, unresolved, resolvedIDs, timedOut := e.phase2(ctx, log, deadlineAt)
	report.Phase2Resolved = resolved
	report.Phase2Unresolved = unresolved
	report.ResolvedTaskIDs = resolvedIDs
	if timedOut {
		report.TimeoutReached = true
		return report
	}

	if e.pastDeadline(deadlineAt) {
		report.TimeoutReached = true
	}
	return report
}

func (e *Engine) pastDeadline(deadlineAt time.Time) bool {
	return e.clock.Now().After(deadlineAt)
}

// phase1 materializes child_task_instruction_prefixes for every skeleton
// not yet marked Phase1Completed, reparsing its raw source files through
// internal/parser. A.ANALYZE already extracts prefixes on a successful
// first pass, so this is the retry path for a skeleton whose first
// attempt landed with none -- the parser's recognized-tag set changed, or
// the first attempt errored before reaching the history file.
func (e *Engine) phase1(ctx context.Context, log logger.Logger) (processed, extracted int) {
	for _, sk := range e.store.All() {
		if ctx.Err() != nil {
			return processed, extracted
		}
		if sk.ProcessingState.Phase1Completed {
			continue
		}
		processed++
		if e.fs != nil && sk.RawDir != "" {
			prefixes, err := skeleton.ReparseChildDeclarations(e.fs, sk.RawDir)
			if err != nil {
				log.Warn("phase1 reparse failed", "task_id", sk.TaskID.String(), "error", err)
			}
			for _, prefix := range prefixes {
				sk.AddInstructionPrefix(prefix)
				extracted++
			}
		}
		sk.ProcessingState.Phase1Completed = true
		e.store.Load(sk)
	}
	log.Debug("phase1 complete", "processed", processed, "extracted", extracted)
	return processed, extracted
}

// rebuildIndex rebuilds the radix index from the current union of every
// skeleton's prefixes, guaranteeing freshness at the start of Phase 2.
func (e *Engine) rebuildIndex() {
	e.index.Clear()
	for _, sk := range e.store.All() {
		for _, prefix := range sk.ChildTaskInstructionPrefixes {
			e.index.Add(sk.TaskID, prefix)
		}
	}
}

// phase2 resolves parent links for every orphan skeleton. A resolved child
// that has a RawDir is also saved to its storage location's .skeletons
// directory through Store.Save; a failed save is logged and the in-memory
// link is kept.
func (e *Engine) phase2(
	ctx context.Context, log logger.Logger, deadlineAt time.Time,
) (resolved, unresolved int, resolvedIDs []core.TaskId, timedOut bool) {
	all := e.store.All() // snapshot by ID for cycle/lineage lookups
	byID := make(map[core.TaskId]*skeleton.Skeleton, len(all))
	for _, sk := range all {
		byID[sk.TaskID] = sk
	}

	for _, child := range all {
		if ctx.Err() != nil || e.pastDeadline(deadlineAt) {
			return resolved, unresolved, resolvedIDs, true
		}
		if !child.ParentTaskID.IsZero() || child.ProcessingState.Phase2Completed {
			continue
		}
		winner, ok := e.resolveOne(child, byID, log)
		child.ProcessingState.Phase2Completed = true
		if ok {
			child.ParentTaskID = winner
			resolved++
			resolvedIDs = append(resolvedIDs, child.TaskID)
		} else {
			unresolved++
		}
		e.store.Load(child)
		if ok && child.RawDir != "" {
			path := filepath.Join(filepath.Dir(child.RawDir), ".skeletons", string(child.TaskID)+".json")
			if err := e.store.Save(ctx, path, child); err != nil {
				log.Warn("persist parent link failed", "task_id", child.TaskID.String(), "error", err)
			}
		}
	}
	return resolved, unresolved, resolvedIDs, false
}
