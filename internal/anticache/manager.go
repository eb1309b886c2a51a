package anticache

import (
	"context"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/pkg/logger"
)

// unboundedCapacity opens each strategy's underlying LRU oversized so the
// library's own count-based eviction never fires; every eviction this
// package performs is explicit and byte-budget-driven.
const unboundedCapacity = math.MaxInt32 >> 8

// Metrics are the counters stats()/health_check() are backed by. They are
// plain prometheus collectors so a composition root can register and
// scrape them without this package owning an HTTP surface.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions *prometheus.CounterVec
	Alerts    prometheus.Counter
}

// NewMetrics builds a fresh, unregistered Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		Hits:   prometheus.NewCounter(prometheus.CounterOpts{Name: "taskindex_anticache_hits_total"}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{Name: "taskindex_anticache_misses_total"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "taskindex_anticache_evictions_total"},
			[]string{"strategy", "mode"}),
		Alerts: prometheus.NewCounter(prometheus.CounterOpts{Name: "taskindex_anticache_alerts_total"}),
	}
}

// Register adds every metric to reg. Call at most once per registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Hits, m.Misses, m.Evictions, m.Alerts} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Manager bounds total cached-artifact memory to a configured ceiling,
// one LRU cache per Strategy.
type Manager struct {
	mu           sync.Mutex
	caches       map[Strategy]*lru.Cache[string, *Entry]
	totalBytes   int64
	ceilingBytes float64
	alertFrac    float64
	enabled      bool
	clock        core.Clock
	log          logger.Logger
	metrics      *Metrics
	alertCount   int64
}

// NewManager builds a Manager. ceilingGB/alertThresholdGB are expressed in
// GB, matching pkg/config's AntiLeakConfig.
func NewManager(ceilingGB, alertThresholdGB float64, enabled bool, clock core.Clock, log logger.Logger, metrics *Metrics) *Manager {
	if clock == nil {
		clock = core.SystemClock
	}
	if log == nil {
		log = logger.FromContext(context.Background())
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	m := &Manager{
		caches:       make(map[Strategy]*lru.Cache[string, *Entry]),
		ceilingBytes: ceilingGB * 1e9,
		alertFrac:    alertThresholdGB / ceilingGB,
		enabled:      enabled,
		clock:        clock,
		log:          log,
		metrics:      metrics,
	}
	for _, s := range allStrategies {
		c, _ := lru.New[string, *Entry](unboundedCapacity)
		m.caches[s] = c
	}
	return m
}

// Store inserts an entry under strategy, running the anti-leak pre-check
// first. Rejected while !enabled.
func (m *Manager) Store(key string, payload any, sizeBytes int64, strategy Strategy, ttl time.Duration) error {
	if !strategy.valid() {
		return core.NewError(nil, core.CodeInputInvalid, "anticache", map[string]any{"strategy": string(strategy)})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return core.NewError(nil, core.CodeResourceLimit, "anticache", map[string]any{"reason": "disabled"})
	}

	now := m.clock.Now()
	if err := m.preCheckLocked(sizeBytes, strategy, now); err != nil {
		return err
	}

	entry := &Entry{
		Key: key, Payload: payload, SizeBytes: sizeBytes,
		CreatedAt: now, LastAccessedAt: now, TTL: ttl, Strategy: strategy,
	}
	cache := m.caches[strategy]
	if old, ok := cache.Get(key); ok {
		m.totalBytes -= old.SizeBytes
	}
	cache.Add(key, entry)
	m.totalBytes += sizeBytes
	return nil
}

// Get returns (payload, createdAt, true) on a live hit, or (nil, zero,
// false) on a miss or expired entry (which is deleted as a side effect).
func (m *Manager) Get(key string) (any, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for strategy, cache := range m.caches {
		entry, ok := cache.Get(key)
		if !ok {
			continue
		}
		if entry.expired(now) {
			m.removeLocked(strategy, key, "ttl_expired")
			m.metrics.Misses.Inc()
			return nil, time.Time{}, false
		}
		entry.LastAccessedAt = now
		entry.AccessCount++
		m.metrics.Hits.Inc()
		return entry.Payload, entry.CreatedAt, true
	}
	m.metrics.Misses.Inc()
	return nil, time.Time{}, false
}

// Lock marks key as in use by a downstream consumer, exempting it from
// every eviction path until Unlock is called.
func (m *Manager) Lock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.findLocked(key); e != nil {
		e.Locked = true
	}
}

// Unlock releases a prior Lock.
func (m *Manager) Unlock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.findLocked(key); e != nil {
		e.Locked = false
	}
}

func (m *Manager) findLocked(key string) *Entry {
	for _, cache := range m.caches {
		if e, ok := cache.Peek(key); ok {
			return e
		}
	}
	return nil
}

// Cleanup runs a manual TTL sweep across every strategy.
func (m *Manager) Cleanup() (evicted int, freedBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for strategy, cache := range m.caches {
		for _, key := range cache.Keys() {
			entry, ok := cache.Peek(key)
			if !ok || entry.Locked {
				continue
			}
			if entry.expired(now) || entry.olderThanMaxAge(now) {
				freedBytes += entry.SizeBytes
				m.removeLocked(strategy, key, "ttl_sweep")
				evicted++
			}
		}
	}
	return evicted, freedBytes
}

// ConsistencyAudit validates every entry (payload present, created_at
// present, size_bytes >= 0) and evicts corrupt ones.
func (m *Manager) ConsistencyAudit() (evicted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for strategy, cache := range m.caches {
		for _, key := range cache.Keys() {
			entry, ok := cache.Peek(key)
			if !ok || entry.Locked {
				continue
			}
			if !entry.valid() {
				m.removeLocked(strategy, key, "consistency_audit")
				evicted++
			}
		}
	}
	return evicted
}

// Reset drops every entry across every strategy.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cache := range m.caches {
		cache.Purge()
	}
	m.totalBytes = 0
}

func (m *Manager) removeLocked(strategy Strategy, key string, mode string) {
	if entry, ok := m.caches[strategy].Peek(key); ok {
		m.totalBytes -= entry.SizeBytes
	}
	m.caches[strategy].Remove(key)
	m.metrics.Evictions.WithLabelValues(string(strategy), mode).Inc()
}

// Stats summarizes current usage.
type Stats struct {
	TotalBytes   int64
	CeilingBytes float64
	PerStrategy  map[Strategy]int
	AlertCount   int64
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	per := make(map[Strategy]int, len(m.caches))
	for s, c := range m.caches {
		per[s] = c.Len()
	}
	return Stats{TotalBytes: m.totalBytes, CeilingBytes: m.ceilingBytes, PerStrategy: per, AlertCount: m.alertCount}
}

// HealthStatus is the derived health_check() verdict.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthCheck derives status from total usage, hit rate, and alert count.
func (m *Manager) HealthCheck(hitRate float64) HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	frac := float64(m.totalBytes) / m.ceilingBytes
	switch {
	case frac > 0.95:
		return HealthCritical
	case frac > 0.80 || hitRate < 0.30 || m.alertCount > 10:
		return HealthWarning
	default:
		return HealthHealthy
	}
}
