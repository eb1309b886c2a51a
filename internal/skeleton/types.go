// Package skeleton implements the Skeleton Store (SPEC_FULL.md component
// A): discovery of raw task directories, skeleton extraction, atomic
// persistence, and the in-memory mirror every other component reads from.
package skeleton

import (
	"encoding/json"
	"time"

	"github.com/taskindex/taskindex/internal/core"
)

// Timestamps tracks when a task began and was last touched.
type Timestamps struct {
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Counts tracks the size of a task, accumulated during ANALYZE.
type Counts struct {
	Messages   int   `json:"messages"`
	Actions    int   `json:"actions"`
	TotalBytes int64 `json:"total_bytes"`
}

// ProcessingState tracks the hierarchy-reconstruction phases (§4.D).
type ProcessingState struct {
	Phase1Completed bool      `json:"phase1_completed"`
	Phase2Completed bool      `json:"phase2_completed"`
	LastProcessedAt time.Time `json:"last_processed_at,omitzero"`
	Errors          []string  `json:"errors,omitempty"`
}

// Checksums record a fingerprint of each raw source file, used to detect
// an on-disk skeleton gone obsolete relative to its raw directory.
type Checksums struct {
	TaskMetadata            string `json:"task_metadata,omitempty"`
	APIConversationHistory  string `json:"api_conversation_history,omitempty"`
	UIMessages               string `json:"ui_messages,omitempty"`
}

// Skeleton is the canonical owned record this core keeps for one task.
type Skeleton struct {
	TaskID                       core.TaskId     `json:"task_id"`
	ParentTaskID                 core.TaskId     `json:"parent_task_id,omitempty"`
	Workspace                    string          `json:"workspace,omitempty"`
	Timestamps                   Timestamps      `json:"timestamps"`
	Counts                       Counts          `json:"counts"`
	ChildTaskInstructionPrefixes []string        `json:"child_task_instruction_prefixes,omitempty"`
	ProcessingState              ProcessingState `json:"processing_state"`
	SourceChecksums              *Checksums      `json:"source_checksums,omitempty"`
	IndexedAt                    time.Time       `json:"indexed_at,omitzero"`

	// OpeningText is the normalized opening instruction this task was
	// given: the first non-empty user-originating message, lowercased
	// and whitespace-collapsed. It is what hierarchy reconstruction
	// matches against the radix index.
	OpeningText string `json:"opening_text,omitempty"`

	// RawDir is the on-disk task directory this skeleton was derived
	// from. Kept in memory only, set by every scan regardless of which
	// state the scanner landed in, so a later pass can reparse the raw
	// source files without re-running discovery.
	RawDir string `json:"-"`

	// Extra preserves fields this version of the core does not
	// recognize, so round-tripping a skeleton never drops data.
	Extra map[string]json.RawMessage `json:"-"`
}

// AddInstructionPrefix appends prefix to the child-instruction history if
// it is not already present, keeping the sequence deduplicated and ordered.
func (s *Skeleton) AddInstructionPrefix(prefix string) {
	if prefix == "" {
		return
	}
	for _, existing := range s.ChildTaskInstructionPrefixes {
		if existing == prefix {
			return
		}
	}
	s.ChildTaskInstructionPrefixes = append(s.ChildTaskInstructionPrefixes, prefix)
}

// Validate rejects an empty task ID and a self-referencing parent.
func (s *Skeleton) Validate() error {
	if s.TaskID.IsZero() {
		return core.NewError(nil, core.CodeInputInvalid, "skeleton", map[string]any{"reason": "empty task_id"})
	}
	if s.ParentTaskID != "" && s.ParentTaskID == s.TaskID {
		return core.NewError(nil, core.CodeInputInvalid, "skeleton", map[string]any{
			"reason":  "self-loop",
			"task_id": s.TaskID.String(),
		})
	}
	return nil
}
