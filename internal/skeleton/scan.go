package skeleton

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/internal/parser"
)

// State names the scan state machine's position for a single raw task
// directory, mirroring the DISCOVERED -> VALID? -> NEEDS_REBUILD? -> ...
// progression a scan pass drives each directory through.
type State int

const (
	StateDiscovered State = iota
	StateValid
	StateInvalid
	StateNeedsRebuild
	StateUpToDate
	StateIndexed
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	case StateNeedsRebuild:
		return "needs_rebuild"
	case StateUpToDate:
		return "up_to_date"
	case StateIndexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// rawContents holds the three source files read during ANALYZE, keyed by
// basename, along with a sha256 checksum per file.
type rawContents struct {
	taskMetadata   []byte
	apiHistory     []byte
	uiMessages     []byte
	checksums      Checksums
}

// ScanResult is the outcome of driving one task directory through the
// state machine.
type ScanResult struct {
	TaskDir string
	TaskID  core.TaskId
	State   State
	Skeleton *Skeleton
	Err     error
}

// Scanner drives raw task directories through DISCOVERED -> VALID ->
// UP_TO_DATE or NEEDS_REBUILD, or INVALID when no raw file is usable. It
// never assigns StateIndexed.
type Scanner struct {
	fs    afero.Fs
	clock core.Clock
}

// NewScanner builds a Scanner reading from fs. A nil clock falls back to
// core.SystemClock.
func NewScanner(fs afero.Fs, clock core.Clock) *Scanner {
	if clock == nil {
		clock = core.SystemClock
	}
	return &Scanner{fs: fs, clock: clock}
}

// Scan drives a single raw task directory through the state machine,
// reading its existing skeleton file (if any) to decide UP_TO_DATE (its
// stored source checksums match the raw files) vs NEEDS_REBUILD, then
// re-deriving counts and timestamps from the raw
// source files when a rebuild is required.
func (sc *Scanner) Scan(ctx context.Context, taskDir, skeletonPath string) ScanResult {
	taskID := core.TaskId(filepath.Base(taskDir))
	res := ScanResult{TaskDir: taskDir, TaskID: taskID, State: StateDiscovered}

	_, valid, err := ReferenceFile(sc.fs, taskDir)
	if err != nil {
		res.State = StateInvalid
		res.Err = err
		return res
	}
	if !valid {
		res.State = StateInvalid
		return res
	}
	res.State = StateValid

	raw, err := sc.readRaw(ctx, taskDir)
	if err != nil {
		res.State = StateInvalid
		res.Err = err
		return res
	}

	existing, readErr := ReadSkeleton(sc.fs, skeletonPath)
	if readErr == nil && existing != nil && existing.SourceChecksums != nil &&
		*existing.SourceChecksums == raw.checksums {
		existing.RawDir = taskDir
		res.State = StateUpToDate
		res.Skeleton = existing
		return res
	}

	res.State = StateNeedsRebuild
	sk := rebuildSkeleton(taskID, taskDir, raw, sc.clock)
	res.Skeleton = sk
	return res
}

// readRaw reads the three candidate raw files concurrently (a bounded,
// explicitly-scoped parallel step within the otherwise single-worker
// scan loop) and checksums each one present.
func (sc *Scanner) readRaw(ctx context.Context, taskDir string) (*rawContents, error) {
	var rc rawContents
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b, sum, err := readAndSum(sc.fs, filepath.Join(taskDir, "task_metadata.json"))
		if err != nil {
			return nil
		}
		rc.taskMetadata = b
		rc.checksums.TaskMetadata = sum
		return nil
	})
	g.Go(func() error {
		b, sum, err := readAndSum(sc.fs, filepath.Join(taskDir, "api_conversation_history.json"))
		if err != nil {
			return nil
		}
		rc.apiHistory = b
		rc.checksums.APIConversationHistory = sum
		return nil
	})
	g.Go(func() error {
		b, sum, err := readAndSum(sc.fs, filepath.Join(taskDir, "ui_messages.json"))
		if err != nil {
			return nil
		}
		rc.uiMessages = b
		rc.checksums.UIMessages = sum
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &rc, nil
}

func readAndSum(fs afero.Fs, path string) ([]byte, string, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(b)
	return b, hex.EncodeToString(sum[:]), nil
}

// rebuildSkeleton derives a fresh Skeleton from raw source bytes. Message
// and action counts come from lenient gjson queries rather than a strict
// struct decode, since the raw file schema is owned by the host agent and
// only loosely specified here.
func rebuildSkeleton(taskID core.TaskId, taskDir string, raw *rawContents, clock core.Clock) *Skeleton {
	sk := &Skeleton{
		TaskID:          taskID,
		RawDir:          taskDir,
		SourceChecksums: &raw.checksums,
		IndexedAt:       clock.Now(),
	}

	if len(raw.taskMetadata) > 0 {
		root := gjson.ParseBytes(raw.taskMetadata)
		if ws := root.Get("workspace"); ws.Exists() {
			sk.Workspace = ws.String()
		}
		if parent := root.Get("parentTask"); parent.Exists() {
			sk.ParentTaskID = core.TaskId(parent.String())
		}
		if created := root.Get("createdAt"); created.Exists() {
			if t, err := parseTime(created.String()); err == nil {
				sk.Timestamps.CreatedAt = t
			}
		}
	}

	sk.Counts.TotalBytes = int64(len(raw.taskMetadata) + len(raw.apiHistory) + len(raw.uiMessages))

	if len(raw.uiMessages) > 0 {
		arr := gjson.ParseBytes(raw.uiMessages)
		if arr.IsArray() {
			items := arr.Array()
			sk.Counts.Messages = len(items)
			if len(items) > 0 {
				if ts := items[len(items)-1].Get("ts"); ts.Exists() {
					if t, err := parseTime(ts.String()); err == nil {
						sk.Timestamps.LastActivity = t
					}
				}
			}
			for _, item := range items {
				if item.Get("say").String() != "user" && item.Get("type").String() != "ask" {
					continue
				}
				text := item.Get("text").String()
				if text == "" {
					continue
				}
				sk.OpeningText = parser.NormalizePrefix(text, parser.DefaultPrefixLength)
				break
			}
		}
	}

	extracted := 0
	if len(raw.apiHistory) > 0 {
		prefixes, actions := extractChildDeclarations(raw.apiHistory)
		for _, prefix := range prefixes {
			sk.AddInstructionPrefix(prefix)
			extracted++
		}
		sk.Counts.Actions = actions
		sk.ProcessingState.Phase1Completed = extracted > 0
	}

	return sk
}

// extractChildDeclarations scans raw assistant-history bytes (the
// api_conversation_history.json contents) for spawn-tool declarations,
// returning each normalized opening-instruction prefix in occurrence
// order (not deduplicated -- callers that want a deduplicated history use
// AddInstructionPrefix) along with the total tool_use block count across
// every assistant message.
func extractChildDeclarations(apiHistory []byte) (prefixes []string, actions int) {
	arr := gjson.ParseBytes(apiHistory)
	if !arr.IsArray() {
		return nil, 0
	}
	for _, msg := range arr.Array() {
		if msg.Get("role").String() != "assistant" {
			continue
		}
		content := msg.Get("content")
		if !content.IsArray() {
			continue
		}
		for _, block := range content.Array() {
			if block.Get("type").String() != "tool_use" {
				continue
			}
			actions++
		}
		text := msg.Get("content.0.text").String()
		if text == "" {
			continue
		}
		for _, decl := range parser.ExtractChildTaskDeclarations(parser.Tokenize(text), parser.DefaultPrefixLength) {
			prefixes = append(prefixes, decl.NormalizedPrefix)
		}
	}
	return prefixes, actions
}

// ReparseChildDeclarations re-reads api_conversation_history.json from
// rawDir and re-extracts child-task instruction prefixes, for a skeleton
// whose first extraction attempt completed with none (e.g. because the
// parser's recognized-tag set has changed since, or the first attempt
// errored before reaching this file). It does not touch Counts or
// Timestamps -- those stay whatever the original ANALYZE pass produced.
func ReparseChildDeclarations(fs afero.Fs, rawDir string) ([]string, error) {
	raw, err := afero.ReadFile(fs, filepath.Join(rawDir, "api_conversation_history.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	prefixes, _ := extractChildDeclarations(raw)
	return prefixes, nil
}
