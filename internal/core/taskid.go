package core

// TaskId is the opaque canonical identifier of a task: identical to the
// directory name it was derived from. It round-trips losslessly through
// the on-disk layout because it simply *is* the directory's base name.
type TaskId string

func (id TaskId) String() string {
	return string(id)
}

func (id TaskId) IsZero() bool {
	return id == ""
}

// ParseTaskId validates a candidate directory name as a TaskId. Empty
// strings and the "." / ".." path segments are rejected as INPUT_INVALID.
func ParseTaskId(s string) (TaskId, error) {
	if s == "" || s == "." || s == ".." {
		return "", NewError(nil, CodeInputInvalid, "core", map[string]any{"value": s})
	}
	return TaskId(s), nil
}
