package anticache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskindex/taskindex/internal/core"
)

func TestScheduler_Defaults(t *testing.T) {
	t.Run("Should fall back to 5 minute sweep and 24 hour audit intervals when non-positive", func(t *testing.T) {
		m := NewManager(10, 9, true, core.NewFrozenClock(time.Now()), nil, nil)
		s := NewScheduler(m, 0, -time.Second, nil)
		assert.Equal(t, 5*time.Minute, s.sweepInterval)
		assert.Equal(t, 24*time.Hour, s.auditInterval)
	})

	t.Run("Should keep explicit intervals when positive", func(t *testing.T) {
		m := NewManager(10, 9, true, core.NewFrozenClock(time.Now()), nil, nil)
		s := NewScheduler(m, 30*time.Second, time.Hour, nil)
		assert.Equal(t, 30*time.Second, s.sweepInterval)
		assert.Equal(t, time.Hour, s.auditInterval)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	t.Run("Should register both loops and stop cleanly", func(t *testing.T) {
		m := NewManager(10, 9, true, core.NewFrozenClock(time.Now()), nil, nil)
		s := NewScheduler(m, time.Minute, time.Hour, nil)
		require.NoError(t, s.Start())
		assert.Len(t, s.cron.Entries(), 2)
		s.Stop()
	})
}

func TestScheduler_RunSweepAndAudit(t *testing.T) {
	t.Run("Should invoke the manager's cleanup when the sweep job fires", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(100, 90, true, clock, nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(1), Aggressive, 0))
		clock.Advance(2 * time.Hour)

		s := NewScheduler(m, time.Minute, time.Hour, nil)
		s.runSweep()

		_, _, ok := m.Get("k1")
		assert.False(t, ok)
	})

	t.Run("Should invoke the manager's consistency audit when the audit job fires", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(100, 90, true, clock, nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(1), Aggressive, 0))
		cache := m.caches[Aggressive]
		entry, _ := cache.Peek("k1")
		entry.SizeBytes = -1

		s := NewScheduler(m, time.Minute, time.Hour, nil)
		s.runAudit()

		_, _, ok := m.Get("k1")
		assert.False(t, ok)
	})
}

func TestEverySpec(t *testing.T) {
	t.Run("Should format a duration into an at-every cron spec", func(t *testing.T) {
		assert.Equal(t, "@every 5m0s", everySpec(5*time.Minute))
	})
}
