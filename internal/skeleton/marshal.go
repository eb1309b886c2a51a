package skeleton

import "encoding/json"

// shadow mirrors Skeleton's known fields for marshal/unmarshal, letting
// Extra absorb anything this version of the CORE does not recognize.
type shadow struct {
	TaskID                       string          `json:"task_id"`
	ParentTaskID                 string          `json:"parent_task_id,omitempty"`
	Workspace                    string          `json:"workspace,omitempty"`
	Timestamps                   Timestamps      `json:"timestamps"`
	Counts                       Counts          `json:"counts"`
	ChildTaskInstructionPrefixes []string        `json:"child_task_instruction_prefixes,omitempty"`
	ProcessingState              ProcessingState `json:"processing_state"`
	SourceChecksums              *Checksums      `json:"source_checksums,omitempty"`
	IndexedAt                    string          `json:"indexed_at,omitempty"`
	OpeningText                  string          `json:"opening_text,omitempty"`
}

var knownFields = map[string]struct{}{
	"task_id": {}, "parent_task_id": {}, "workspace": {}, "timestamps": {},
	"counts": {}, "child_task_instruction_prefixes": {}, "processing_state": {},
	"source_checksums": {}, "indexed_at": {}, "opening_text": {},
}

func (s Skeleton) MarshalJSON() ([]byte, error) {
	sh := shadow{
		TaskID:                       s.TaskID.String(),
		ParentTaskID:                 s.ParentTaskID.String(),
		Workspace:                    s.Workspace,
		Timestamps:                   s.Timestamps,
		Counts:                       s.Counts,
		ChildTaskInstructionPrefixes: s.ChildTaskInstructionPrefixes,
		ProcessingState:              s.ProcessingState,
		SourceChecksums:              s.SourceChecksums,
		OpeningText:                  s.OpeningText,
	}
	if !s.IndexedAt.IsZero() {
		sh.IndexedAt = s.IndexedAt.Format(timeLayout)
	}
	base, err := json.Marshal(sh)
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, known := knownFields[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (s *Skeleton) UnmarshalJSON(data []byte) error {
	var sh shadow
	if err := json.Unmarshal(data, &sh); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if _, known := knownFields[k]; !known {
			extra[k] = v
		}
	}
	s.TaskID = taskIDFrom(sh.TaskID)
	s.ParentTaskID = taskIDFrom(sh.ParentTaskID)
	s.Workspace = sh.Workspace
	s.Timestamps = sh.Timestamps
	s.Counts = sh.Counts
	s.ChildTaskInstructionPrefixes = sh.ChildTaskInstructionPrefixes
	s.ProcessingState = sh.ProcessingState
	s.SourceChecksums = sh.SourceChecksums
	s.OpeningText = sh.OpeningText
	if sh.IndexedAt != "" {
		if t, err := parseTime(sh.IndexedAt); err == nil {
			s.IndexedAt = t
		}
	}
	if len(extra) > 0 {
		s.Extra = extra
	}
	return nil
}
