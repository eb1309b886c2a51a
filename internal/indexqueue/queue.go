// Package indexqueue propagates "this skeleton is now stable" events to
// downstream consumers (typically a semantic-embedding worker) with
// membership-deduplicated, insertion-ordered delivery.
package indexqueue

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/pkg/logger"
)

// Queue is a set-semantics queue keyed by task ID: enqueuing an ID already
// present is a no-op, and take_batch drains entries in original insertion
// order. Single-producer/single-consumer by convention; enabled may be
// toggled from any caller.
type Queue struct {
	mu      sync.Mutex
	set     *linkedhashset.Set
	enabled bool
	clock   core.Clock
	log     logger.Logger
}

// New builds an empty, enabled Queue.
func New(clock core.Clock, log logger.Logger) *Queue {
	if clock == nil {
		clock = core.SystemClock
	}
	if log == nil {
		log = logger.FromContext(context.Background())
	}
	return &Queue{set: linkedhashset.New(), enabled: true, clock: clock, log: log}
}

// Enqueue records taskID for downstream delivery. Idempotent: re-enqueuing
// an already-present ID does not move it to the back. Recorded even while
// disabled.
func (q *Queue) Enqueue(taskID core.TaskId) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.set.Add(taskID)
	q.log.Debug("task enqueued for downstream indexing", "task_id", string(taskID), "depth", q.set.Size())
}

// TakeBatch drains up to maxN entries in insertion order. Returns empty
// while disabled, without discarding anything still queued.
func (q *Queue) TakeBatch(maxN int) []core.TaskId {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled || maxN <= 0 {
		return nil
	}
	values := q.set.Values()
	n := maxN
	if n > len(values) {
		n = len(values)
	}
	if n == 0 {
		return nil
	}
	batch := make([]core.TaskId, 0, n)
	for i := 0; i < n; i++ {
		id := values[i].(core.TaskId)
		batch = append(batch, id)
		q.set.Remove(id)
	}
	return batch
}

// SetEnabled toggles delivery. Enqueue keeps working regardless.
func (q *Queue) SetEnabled(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = enabled
}

// Enabled reports the current toggle state.
func (q *Queue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// Len reports the number of distinct task IDs currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.set.Size()
}

// Contains reports whether taskID is currently queued.
func (q *Queue) Contains(taskID core.TaskId) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.set.Contains(taskID)
}

// Clear drops every queued ID without delivering it.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.set.Clear()
}

// IndexedMarker is the subset of the skeleton store this queue notifies on
// a completed downstream delivery. The Queue itself holds no per-task
// completion state; Complete exists so callers have a single place to
// route the "indexed" event toward component A's mark_indexed.
type IndexedMarker interface {
	MarkIndexed(taskID core.TaskId, errs []string)
}

// Complete notifies store of a successful downstream delivery for taskID.
func (q *Queue) Complete(store IndexedMarker, taskID core.TaskId, errs []string) {
	store.MarkIndexed(taskID, errs)
}
