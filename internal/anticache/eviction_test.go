package anticache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskindex/taskindex/internal/core"
)

func TestEviction_CeilingScenario(t *testing.T) {
	t.Run("Should evict the oldest aggressive entry preventively while leaving conservative alone", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		// Ceiling 10 GB. Aggressive's own cap is 0.25 * 10 GB = 2.5 GB, so
		// a1 (1 GB) plus a2 (2 GB) together overflow it and force a1 out;
		// Conservative's own cap is 0.30 * 10 GB = 3 GB, comfortably
		// holding both 0.5 GB conservative entries throughout.
		m := NewManager(10, 1, true, clock, nil, nil)

		require.NoError(t, m.Store("a1", "a1", gb(1), Aggressive, 0))
		clock.Advance(time.Second)
		require.NoError(t, m.Store("c1", "c1", gb(0.5), Conservative, 0))
		clock.Advance(time.Second)
		require.NoError(t, m.Store("c2", "c2", gb(0.5), Conservative, 0))
		clock.Advance(time.Second)

		require.NoError(t, m.Store("a2", "a2", gb(2), Aggressive, 0))

		_, _, a1 := m.Get("a1")
		assert.False(t, a1, "the oldest aggressive entry must be evicted to make room under its own cap")

		_, _, c1 := m.Get("c1")
		_, _, c2 := m.Get("c2")
		assert.True(t, c1, "conservative entries must survive an aggressive-tier eviction")
		assert.True(t, c2)

		_, _, newEntry := m.Get("a2")
		assert.True(t, newEntry, "the newly inserted entry must be present")

		st := m.Stats()
		assert.LessOrEqual(t, float64(st.TotalBytes), st.CeilingBytes)
	})

	t.Run("Should keep the global ceiling invariant as mixed-strategy entries accumulate", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(10, 1, true, clock, nil, nil)

		require.NoError(t, m.Store("b1", "b1", gb(1), Bypass, 0))
		clock.Advance(time.Second)
		require.NoError(t, m.Store("m1", "m1", gb(3), Moderate, 0))
		clock.Advance(time.Second)
		require.NoError(t, m.Store("c1", "c1", gb(2), Conservative, 0))
		clock.Advance(time.Second)

		require.NoError(t, m.Store("m2", "m2", gb(3), Moderate, 0))

		st := m.Stats()
		assert.LessOrEqual(t, float64(st.TotalBytes), st.CeilingBytes)

		_, _, m2 := m.Get("m2")
		assert.True(t, m2)
	})

	t.Run("Should return an error once even the full eviction cascade cannot make room", func(t *testing.T) {
		clock := core.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewManager(1, 0.1, true, clock, nil, nil)

		for _, key := range []string{"l1", "l2", "l3"} {
			require.NoError(t, m.Store(key, key, gb(0.3), Aggressive, 0))
			m.Lock(key)
			clock.Advance(time.Second)
		}

		err := m.Store("overflow", "overflow", gb(0.5), Aggressive, 0)
		assert.Error(t, err)
	})
}
