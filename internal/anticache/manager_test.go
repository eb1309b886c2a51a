package anticache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskindex/taskindex/internal/core"
)

func gb(n float64) int64 { return int64(n * 1e9) }

func TestManager_StoreAndGet(t *testing.T) {
	t.Run("Should store and retrieve a live entry", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(10, 9, true, clock, nil, nil)

		require.NoError(t, m.Store("k1", "payload", gb(1), Aggressive, time.Hour))
		payload, createdAt, ok := m.Get("k1")
		require.True(t, ok)
		assert.Equal(t, "payload", payload)
		assert.Equal(t, clock.Now(), createdAt)
	})

	t.Run("Should reject a store when disabled", func(t *testing.T) {
		m := NewManager(10, 9, false, core.NewFrozenClock(time.Now()), nil, nil)
		err := m.Store("k1", "p", gb(1), Aggressive, time.Hour)
		require.Error(t, err)
	})

	t.Run("Should report a miss for an unknown key", func(t *testing.T) {
		m := NewManager(10, 9, true, core.NewFrozenClock(time.Now()), nil, nil)
		_, _, ok := m.Get("missing")
		assert.False(t, ok)
	})

	t.Run("Should evict an expired entry on get and report a miss", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(10, 9, true, clock, nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(1), Aggressive, time.Minute))

		clock.Advance(2 * time.Minute)
		_, _, ok := m.Get("k1")
		assert.False(t, ok)

		st := m.Stats()
		assert.Equal(t, 0, st.PerStrategy[Aggressive])
	})
}

func TestManager_EvictionCascade(t *testing.T) {
	t.Run("Should preventively evict the oldest aggressive entry when its cap is exceeded", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		// Ceiling 10 GB, alert at 3 GB; aggressive cap = 25% = 2.5 GB.
		m := NewManager(10, 3, true, clock, nil, nil)

		require.NoError(t, m.Store("old", "p", gb(2), Aggressive, 0))
		clock.Advance(time.Second)
		require.NoError(t, m.Store("new", "p", gb(2), Aggressive, 0))

		_, _, oldStillThere := m.Get("old")
		_, _, newThere := m.Get("new")
		assert.False(t, oldStillThere)
		assert.True(t, newThere)
	})

	t.Run("Should never evict a locked entry", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(10, 3, true, clock, nil, nil)

		require.NoError(t, m.Store("locked-one", "p", gb(2), Aggressive, 0))
		m.Lock("locked-one")
		clock.Advance(time.Second)
		require.NoError(t, m.Store("new", "p", gb(2), Aggressive, 0))

		_, _, stillThere := m.Get("locked-one")
		assert.True(t, stillThere)
	})

	t.Run("Should leave conservative entries untouched by aggressive preventive eviction", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(10, 9, true, clock, nil, nil)

		require.NoError(t, m.Store("c1", "p", gb(2), Conservative, 0))
		require.NoError(t, m.Store("c2", "p", gb(2), Conservative, 0))
		require.NoError(t, m.Store("a1", "p", gb(2), Aggressive, 0))
		require.NoError(t, m.Store("a2", "p", gb(2), Aggressive, 0))
		require.NoError(t, m.Store("a3", "p", gb(2), Aggressive, 0))

		_, _, c1 := m.Get("c1")
		_, _, c2 := m.Get("c2")
		assert.True(t, c1)
		assert.True(t, c2)
	})
}

func TestManager_CleanupAndAudit(t *testing.T) {
	t.Run("Should sweep entries past their strategy max age", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(100, 90, true, clock, nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(1), Aggressive, 0))

		clock.Advance(2 * time.Hour)
		evicted, freed := m.Cleanup()
		assert.Equal(t, 1, evicted)
		assert.Equal(t, gb(1), freed)
	})

	t.Run("Should evict entries failing the consistency audit", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(100, 90, true, clock, nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(1), Aggressive, 0))

		cache := m.caches[Aggressive]
		entry, _ := cache.Peek("k1")
		entry.SizeBytes = -1

		evicted := m.ConsistencyAudit()
		assert.Equal(t, 1, evicted)
	})
}

func TestManager_HealthCheck(t *testing.T) {
	t.Run("Should report healthy when usage and hit rate are nominal", func(t *testing.T) {
		m := NewManager(100, 90, true, core.NewFrozenClock(time.Now()), nil, nil)
		assert.Equal(t, HealthHealthy, m.HealthCheck(0.9))
	})

	t.Run("Should report critical once usage exceeds 95 percent of ceiling", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Now())
		m := NewManager(10, 1000, true, clock, nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(9.6), Conservative, 0))
		assert.Equal(t, HealthCritical, m.HealthCheck(0.9))
	})
}

func TestManager_Reset(t *testing.T) {
	t.Run("Should drop every entry across every strategy", func(t *testing.T) {
		m := NewManager(100, 90, true, core.NewFrozenClock(time.Now()), nil, nil)
		require.NoError(t, m.Store("k1", "p", gb(1), Aggressive, 0))
		m.Reset()
		_, _, ok := m.Get("k1")
		assert.False(t, ok)
	})
}
