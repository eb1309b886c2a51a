package skeleton

import (
	"time"

	"github.com/taskindex/taskindex/internal/core"
)

const timeLayout = time.RFC3339Nano

func taskIDFrom(s string) core.TaskId {
	return core.TaskId(s)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
