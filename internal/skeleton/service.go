package skeleton

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/taskindex/taskindex/internal/core"
)

// Enqueuer is the subset of the indexing queue the store notifies after a
// successful write, kept as a narrow interface here to avoid an import
// cycle with internal/indexqueue.
type Enqueuer interface {
	Enqueue(taskID core.TaskId)
}

// ScanReport summarizes one pass across every discovered task directory.
type ScanReport struct {
	Built       int
	Skipped     int
	Invalid     int
	CachedSize  int
	Errors      []string
}

// ScanOptions narrows a scan pass to a subset of task directories.
type ScanOptions struct {
	ForceRebuild    bool
	WorkspaceFilter string
	TaskIDs         map[core.TaskId]struct{}
}

// Service is the top-level orchestrator for component A: it discovers
// storage locations, drives every task directory through the Scanner's
// state machine, persists rebuilt skeletons through Store, and notifies
// the indexing queue of every successful write.
type Service struct {
	fs                    afero.Fs
	store                 *Store
	scanner               *Scanner
	queue                 Enqueuer
	workspaceRootOverride string
}

// NewService builds a Service. queue may be nil, in which case successful
// writes are simply not enqueued anywhere. workspaceRootOverride corresponds
// to ROO_EXTENSIONS_PATH (§6); empty defers to OS-conventional discovery.
func NewService(fs afero.Fs, store *Store, scanner *Scanner, queue Enqueuer, workspaceRootOverride string) *Service {
	return &Service{fs: fs, store: store, scanner: scanner, queue: queue, workspaceRootOverride: workspaceRootOverride}
}

// Scan runs detect_storage_locations, then drives every matching task
// directory through the Scanner's state machine, persisting rebuilt
// skeletons and loading up-to-date ones into the in-memory mirror.
func (svc *Service) Scan(ctx context.Context, opts ScanOptions) ScanReport {
	var report ScanReport

	locations, err := DetectStorageLocations(svc.fs, svc.workspaceRootOverride)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	for _, loc := range locations {
		dirs, err := TaskDirectories(svc.fs, loc)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		for _, dir := range dirs {
			taskID := core.TaskId(filepath.Base(dir))
			if opts.TaskIDs != nil {
				if _, ok := opts.TaskIDs[taskID]; !ok {
					report.Skipped++
					continue
				}
			}
			svc.scanOne(ctx, dir, taskID, opts, &report)
		}
	}
	return report
}

// scanOne drives one task directory through the scanner. The workspace
// filter is skipped entirely when the caller selected this directory via
// opts.TaskIDs -- an explicit task-ID selection always wins over the
// filter, per the filter's own "ignored when task_ids is provided" rule.
func (svc *Service) scanOne(ctx context.Context, dir string, taskID core.TaskId, opts ScanOptions, report *ScanReport) {
	skeletonPath := filepath.Join(filepath.Dir(dir), ".skeletons", string(taskID)+".json")

	if opts.ForceRebuild {
		_ = svc.fs.Remove(skeletonPath)
	}

	res := svc.scanner.Scan(ctx, dir, skeletonPath)
	if opts.TaskIDs == nil && res.Skeleton != nil && opts.WorkspaceFilter != "" &&
		!MatchesWorkspaceFilter(res.Skeleton.Workspace, opts.WorkspaceFilter) {
		report.Skipped++
		return
	}
	switch res.State {
	case StateInvalid:
		report.Invalid++
		if res.Err != nil {
			report.Errors = append(report.Errors, res.Err.Error())
		}
	case StateUpToDate:
		svc.store.Load(res.Skeleton)
		report.Skipped++
		report.CachedSize += int(res.Skeleton.Counts.TotalBytes)
	case StateNeedsRebuild:
		if err := svc.store.Save(ctx, skeletonPath, res.Skeleton); err != nil {
			report.Errors = append(report.Errors, err.Error())
			return
		}
		if svc.queue != nil {
			svc.queue.Enqueue(taskID)
		}
		report.Built++
		report.CachedSize += int(res.Skeleton.Counts.TotalBytes)
	}
}
