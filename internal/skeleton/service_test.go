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

type recordingQueue struct {
	enqueued []core.TaskId
}

func (q *recordingQueue) Enqueue(taskID core.TaskId) {
	q.enqueued = append(q.enqueued, taskID)
}

func newServiceFixture(t *testing.T) (afero.Fs, *Store, *recordingQueue, *Service) {
	t.Helper()
	fs := afero.NewMemMapFs()
	clock := core.NewFrozenClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	store := NewStore(fs, clock, nil)
	scanner := NewScanner(fs, clock)
	queue := &recordingQueue{}
	svc := NewService(fs, store, scanner, queue, "/storage-root")
	return fs, store, queue, svc
}

func TestService_Scan(t *testing.T) {
	t.Run("Should build a skeleton for a freshly discovered task directory and enqueue it", func(t *testing.T) {
		fs, store, queue, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, afero.WriteFile(fs, root+"/task-1/ui_messages.json",
			[]byte(`[{"type":"ask","text":"do the thing","ts":"2026-01-01T00:00:00Z"}]`), 0o644))

		report := svc.Scan(context.Background(), ScanOptions{})

		assert.Equal(t, 1, report.Built)
		assert.Empty(t, report.Errors)
		assert.Len(t, queue.enqueued, 1)
		assert.Equal(t, core.TaskId("task-1"), queue.enqueued[0])

		_, ok := store.Get("task-1")
		assert.True(t, ok)
	})

	t.Run("Should report an invalid directory with none of the three raw files", func(t *testing.T) {
		fs, _, _, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, fs.MkdirAll(root+"/task-empty", 0o755))

		report := svc.Scan(context.Background(), ScanOptions{})
		assert.Equal(t, 1, report.Invalid)
		assert.Equal(t, 0, report.Built)
	})

	t.Run("Should restrict a scan to an explicit task_id set", func(t *testing.T) {
		fs, _, queue, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, afero.WriteFile(fs, root+"/task-1/ui_messages.json", []byte(`[]`), 0o644))
		require.NoError(t, afero.WriteFile(fs, root+"/task-2/ui_messages.json", []byte(`[]`), 0o644))

		report := svc.Scan(context.Background(), ScanOptions{TaskIDs: map[core.TaskId]struct{}{"task-1": {}}})

		assert.Equal(t, 1, report.Built)
		assert.Equal(t, 1, report.Skipped)
		assert.Len(t, queue.enqueued, 1)
	})

	t.Run("Should skip a directory not matching the workspace filter", func(t *testing.T) {
		fs, _, _, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, afero.WriteFile(fs, root+"/task-1/task_metadata.json",
			[]byte(`{"workspace":"/home/user/projects/widgets"}`), 0o644))

		report := svc.Scan(context.Background(), ScanOptions{WorkspaceFilter: "does-not-match"})
		assert.Equal(t, 0, report.Built)
		assert.Equal(t, 1, report.Skipped)
	})

	t.Run("Should return an up-to-date skeleton unchanged on a second pass", func(t *testing.T) {
		fs, _, queue, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, afero.WriteFile(fs, root+"/task-1/ui_messages.json", []byte(`[]`), 0o644))

		first := svc.Scan(context.Background(), ScanOptions{})
		require.Equal(t, 1, first.Built)

		second := svc.Scan(context.Background(), ScanOptions{})
		assert.Equal(t, 0, second.Built)
		assert.Equal(t, 1, second.Skipped)
		assert.Len(t, queue.enqueued, 1, "the second pass must not re-enqueue an unchanged skeleton")
	})

	t.Run("Should force a rebuild when force_rebuild is set even for an unchanged directory", func(t *testing.T) {
		fs, _, queue, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, afero.WriteFile(fs, root+"/task-1/ui_messages.json", []byte(`[]`), 0o644))

		first := svc.Scan(context.Background(), ScanOptions{})
		require.Equal(t, 1, first.Built)

		second := svc.Scan(context.Background(), ScanOptions{ForceRebuild: true})
		assert.Equal(t, 1, second.Built)
		assert.Len(t, queue.enqueued, 2)
	})

	t.Run("Should ignore the workspace filter when task_ids also selected the directory", func(t *testing.T) {
		fs, _, queue, svc := newServiceFixture(t)
		root := "/storage-root/pub/ext/tasks"
		require.NoError(t, afero.WriteFile(fs, root+"/task-1/task_metadata.json",
			[]byte(`{"workspace":"/home/user/projects/widgets"}`), 0o644))
		require.NoError(t, afero.WriteFile(fs, root+"/task-2/task_metadata.json",
			[]byte(`{"workspace":"/home/user/projects/widgets"}`), 0o644))

		report := svc.Scan(context.Background(), ScanOptions{
			TaskIDs:         map[core.TaskId]struct{}{"task-1": {}},
			WorkspaceFilter: "does-not-match",
		})

		assert.Equal(t, 1, report.Built, "the explicit task_id selection must win over a non-matching workspace filter")
		assert.Equal(t, 1, report.Skipped, "task-2 is skipped by the task_id gate, not the workspace filter")
		assert.Len(t, queue.enqueued, 1)
		assert.Equal(t, core.TaskId("task-1"), queue.enqueued[0])
	})
}
