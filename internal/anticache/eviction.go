package anticache

import (
	"time"

	"github.com/taskindex/taskindex/internal/core"
)

// preCheckLocked implements the anti-leak pre-check: compute the
// projected total if newSize were admitted under strategy and, if the
// projection crosses the alert threshold, run the preventive / emergency
// / forced eviction cascade until either the ceiling holds or eviction
// is exhausted. Caller holds m.mu.
func (m *Manager) preCheckLocked(newSize int64, strategy Strategy, now time.Time) error {
	projected := m.totalBytes + newSize
	if float64(projected) < m.alertFrac*m.ceilingBytes {
		return nil
	}
	m.alertCount++
	m.metrics.Alerts.Inc()

	m.preventiveEvictLocked(strategy, newSize, now)
	projected = m.totalBytes + newSize
	if float64(projected) <= m.ceilingBytes {
		return nil
	}

	m.emergencyEvictLocked(projected, now)
	projected = m.totalBytes + newSize
	if float64(projected) <= m.ceilingBytes {
		return nil
	}

	m.forcedEvictLocked(projected, now)
	projected = m.totalBytes + newSize
	if float64(projected) > m.ceilingBytes {
		return core.NewError(nil, core.CodeResourceLimit, "anticache", map[string]any{
			"reason":    "ceiling exceeded after full eviction cascade",
			"projected": projected,
			"ceiling":   m.ceilingBytes,
		})
	}
	return nil
}

// preventiveEvictLocked evicts oldest-first within strategy until its own
// cap accommodates newSize.
func (m *Manager) preventiveEvictLocked(strategy Strategy, newSize int64, now time.Time) {
	budget := strategy.capBytes(m.ceilingBytes)
	for m.strategyBytesLocked(strategy)+newSize > int64(budget) {
		if !m.evictOldestLocked(strategy, "preventive") {
			return
		}
	}
}

// emergencyEvictLocked visits strategies bypass -> aggressive -> moderate
// -> conservative, freeing the remaining deficit against the global
// ceiling.
func (m *Manager) emergencyEvictLocked(projected int64, now time.Time) {
	incoming := projected - m.totalBytes
	for _, strategy := range emergencyOrder {
		if float64(projected) <= m.ceilingBytes {
			return
		}
		for float64(projected) > m.ceilingBytes {
			freed := m.evictOldestLocked(strategy, "emergency")
			if !freed {
				break
			}
			projected = m.totalBytes + incoming
		}
	}
}

// forcedEvictLocked evicts the globally oldest non-locked entries,
// irrespective of strategy, until the ceiling holds or nothing is left
// to evict.
func (m *Manager) forcedEvictLocked(projected int64, now time.Time) {
	incoming := projected - m.totalBytes
	for float64(projected) > m.ceilingBytes {
		oldestStrategy, ok := m.findGlobalOldestLocked()
		if !ok {
			return
		}
		m.evictOldestLocked(oldestStrategy, "forced")
		projected = m.totalBytes + incoming
	}
}

// evictOldestLocked removes the single oldest non-locked entry in
// strategy's cache (LRU's GetOldest order), returning whether anything
// was evicted.
func (m *Manager) evictOldestLocked(strategy Strategy, mode string) bool {
	cache := m.caches[strategy]
	for _, key := range cache.Keys() {
		entry, ok := cache.Peek(key)
		if !ok || entry.Locked {
			continue
		}
		m.removeLocked(strategy, key, mode)
		return true
	}
	return false
}

// findGlobalOldestLocked returns the strategy holding the globally oldest
// non-locked entry, by CreatedAt.
func (m *Manager) findGlobalOldestLocked() (Strategy, bool) {
	var (
		best     Strategy
		bestTime time.Time
		found    bool
	)
	for strategy, cache := range m.caches {
		for _, key := range cache.Keys() {
			entry, ok := cache.Peek(key)
			if !ok || entry.Locked {
				continue
			}
			if !found || entry.CreatedAt.Before(bestTime) {
				best, bestTime, found = strategy, entry.CreatedAt, true
			}
		}
	}
	return best, found
}

func (m *Manager) strategyBytesLocked(strategy Strategy) int64 {
	var total int64
	cache := m.caches[strategy]
	for _, key := range cache.Keys() {
		if entry, ok := cache.Peek(key); ok {
			total += entry.SizeBytes
		}
	}
	return total
}
