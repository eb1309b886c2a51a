package skeleton

import (
	"context"
	"sync"

	"github.com/spf13/afero"
	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/pkg/logger"
)

// Store is the in-memory mirror every other component reads skeletons
// from. A single background worker is the only writer; readers take the
// read lock and never block each other.
type Store struct {
	mu    sync.RWMutex
	byID  map[core.TaskId]*Skeleton
	fs    afero.Fs
	clock core.Clock
	log   logger.Logger
}

// NewStore builds an empty Store backed by fs for persistence. A nil clock
// falls back to core.SystemClock, a nil log falls back to the default
// logger logger.FromContext builds (silent only under `go test`).
func NewStore(fs afero.Fs, clock core.Clock, log logger.Logger) *Store {
	if clock == nil {
		clock = core.SystemClock
	}
	if log == nil {
		log = logger.FromContext(context.Background())
	}
	return &Store{
		byID:  make(map[core.TaskId]*Skeleton),
		fs:    fs,
		clock: clock,
		log:   log,
	}
}

// Get returns a copy of the skeleton for id, or (nil, false) if unknown.
func (s *Store) Get(id core.TaskId) (*Skeleton, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *sk
	return &cp, true
}

// All returns a snapshot slice of every skeleton currently held.
func (s *Store) All() []*Skeleton {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Skeleton, 0, len(s.byID))
	for _, sk := range s.byID {
		cp := *sk
		out = append(out, &cp)
	}
	return out
}

// Save validates sk, persists it to path on disk (via SaveAtomic's retry
// policy), and updates the in-memory mirror on success.
func (s *Store) Save(ctx context.Context, path string, sk *Skeleton) error {
	if err := sk.Validate(); err != nil {
		return err
	}
	if err := SaveAtomic(ctx, s.fs, path, sk); err != nil {
		return core.NewError(err, core.CodePersistFailed, "skeleton", map[string]any{
			"task_id": sk.TaskID.String(),
			"path":    path,
		})
	}
	s.mu.Lock()
	cp := *sk
	s.byID[sk.TaskID] = &cp
	s.mu.Unlock()
	s.log.Debug("skeleton saved", "task_id", sk.TaskID.String())
	return nil
}

// MarkIndexed stamps ProcessingState.LastProcessedAt with the store's
// clock and records errs, replacing any prior errors for this pass.
func (s *Store) MarkIndexed(id core.TaskId, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.byID[id]
	if !ok {
		return
	}
	sk.ProcessingState.LastProcessedAt = s.clock.Now()
	sk.ProcessingState.Errors = errs
}

// Load seeds the in-memory mirror directly, bypassing persistence -- used
// when hydrating from skeletons already read off disk during a scan.
func (s *Store) Load(sk *Skeleton) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sk
	s.byID[sk.TaskID] = &cp
}

// Delete removes id from the in-memory mirror. It does not remove the
// on-disk skeleton file.
func (s *Store) Delete(id core.TaskId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Len reports how many skeletons the mirror currently holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
