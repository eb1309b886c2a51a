package skeleton

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskindex/taskindex/internal/core"
)

func TestScanner_Scan(t *testing.T) {
	t.Run("Should report invalid when no raw file is present", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/tasks/task-1", 0o755))
		sc := NewScanner(fs, core.NewFrozenClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))

		res := sc.Scan(context.Background(), "/tasks/task-1", "/tasks/task-1/skeleton.json")
		assert.Equal(t, StateInvalid, res.State)
	})

	t.Run("Should rebuild from raw files when no skeleton exists yet", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/tasks/task-2/task_metadata.json",
			[]byte(`{"workspace":"/repo","createdAt":"2026-01-01T00:00:00Z"}`), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/tasks/task-2/ui_messages.json",
			[]byte(`[{"ts":"2026-01-01T00:05:00Z"},{"ts":"2026-01-01T00:10:00Z"}]`), 0o644))

		sc := NewScanner(fs, core.NewFrozenClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))
		res := sc.Scan(context.Background(), "/tasks/task-2", "/tasks/task-2/skeleton.json")

		require.Equal(t, StateNeedsRebuild, res.State)
		require.NotNil(t, res.Skeleton)
		assert.Equal(t, core.TaskId("task-2"), res.Skeleton.TaskID)
		assert.Equal(t, "/repo", res.Skeleton.Workspace)
		assert.Equal(t, 2, res.Skeleton.Counts.Messages)
	})

	t.Run("Should report up to date when checksums match the existing skeleton", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/tasks/task-3/task_metadata.json",
			[]byte(`{"workspace":"/repo"}`), 0o644))

		sc := NewScanner(fs, core.NewFrozenClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))
		first := sc.Scan(context.Background(), "/tasks/task-3", "/tasks/task-3/skeleton.json")
		require.Equal(t, StateNeedsRebuild, first.State)

		require.NoError(t, SaveAtomic(context.Background(), fs, "/tasks/task-3/skeleton.json", first.Skeleton))

		second := sc.Scan(context.Background(), "/tasks/task-3", "/tasks/task-3/skeleton.json")
		assert.Equal(t, StateUpToDate, second.State)
	})

	t.Run("Should derive opening text and extract child-task prefixes", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/tasks/task-5/ui_messages.json",
			[]byte(`[{"type":"ask","text":"  Write a Calculator Program  ","ts":"2026-01-01T00:00:00Z"}]`), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/tasks/task-5/api_conversation_history.json",
			[]byte(`[{"role":"assistant","content":[{"type":"text","text":"<new_task><message>build a REST client for this API</message></new_task>"}]}]`), 0o644))

		sc := NewScanner(fs, core.NewFrozenClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))
		res := sc.Scan(context.Background(), "/tasks/task-5", "/tasks/task-5/skeleton.json")

		require.Equal(t, StateNeedsRebuild, res.State)
		require.NotNil(t, res.Skeleton)
		assert.Equal(t, "write a calculator program", res.Skeleton.OpeningText)
		assert.Equal(t, []string{"build a rest client for this api"}, res.Skeleton.ChildTaskInstructionPrefixes)
		assert.True(t, res.Skeleton.ProcessingState.Phase1Completed)
	})

	t.Run("Should detect a changed raw file as needing rebuild", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/tasks/task-4/task_metadata.json",
			[]byte(`{"workspace":"/repo"}`), 0o644))

		sc := NewScanner(fs, core.NewFrozenClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))
		first := sc.Scan(context.Background(), "/tasks/task-4", "/tasks/task-4/skeleton.json")
		require.NoError(t, SaveAtomic(context.Background(), fs, "/tasks/task-4/skeleton.json", first.Skeleton))

		require.NoError(t, afero.WriteFile(fs, "/tasks/task-4/task_metadata.json",
			[]byte(`{"workspace":"/repo-changed"}`), 0o644))

		second := sc.Scan(context.Background(), "/tasks/task-4", "/tasks/task-4/skeleton.json")
		assert.Equal(t, StateNeedsRebuild, second.State)
		assert.Equal(t, "/repo-changed", second.Skeleton.Workspace)
	})
}

func TestState_String(t *testing.T) {
	t.Run("Should render every known state to a distinct label", func(t *testing.T) {
		labels := map[State]string{
			StateDiscovered:   "discovered",
			StateValid:        "valid",
			StateInvalid:      "invalid",
			StateNeedsRebuild: "needs_rebuild",
			StateUpToDate:     "up_to_date",
			StateIndexed:      "indexed",
		}
		for state, want := range labels {
			assert.Equal(t, want, state.String())
		}
	})
}
