package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	koanf "github.com/knadh/koanf/v2"
)

// Service validates a loaded Config. It is the single place validation
// rules live, separate from Manager's load/watch responsibilities.
type Service struct{}

func NewService() *Service { return &Service{} }

func (s *Service) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("validation failed: config is nil")
	}
	if cfg.AntiLeak.CeilingGB <= 0 {
		return fmt.Errorf("validation failed: anti_leak.ceiling_gb must be positive, got %v", cfg.AntiLeak.CeilingGB)
	}
	if cfg.AntiLeak.AlertThresholdGB <= 0 || cfg.AntiLeak.AlertThresholdGB > cfg.AntiLeak.CeilingGB {
		return fmt.Errorf(
			"validation failed: anti_leak.alert_threshold_gb must be in (0, ceiling_gb], got %v",
			cfg.AntiLeak.AlertThresholdGB,
		)
	}
	if cfg.AntiLeak.TTLSweepInterval <= 0 {
		return fmt.Errorf("validation failed: anti_leak.ttl_sweep_interval must be positive")
	}
	if cfg.Hierarchy.ReconstructionDeadline <= 0 {
		return fmt.Errorf("validation failed: hierarchy.reconstruction_deadline must be positive")
	}
	if cfg.Hierarchy.PrefixLength <= 0 {
		return fmt.Errorf("validation failed: hierarchy.prefix_length must be positive")
	}
	if cfg.Queue.DefaultBatch <= 0 {
		return fmt.Errorf("validation failed: queue.default_batch must be positive")
	}
	return nil
}

// Manager owns the current Config and the providers that built it. It is
// an owned value, never reached for globally: cmd/taskindexd builds one,
// loads a Config through it, and passes that *Config to the composition
// root (app.New).
type Manager struct {
	Service  *Service
	debounce time.Duration

	cur       atomic.Pointer[Config]
	mu        sync.Mutex
	providers []Provider
	cancel    context.CancelFunc
	listeners []func(*Config)
}

func NewManager(service *Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service, debounce: 100 * time.Millisecond}
}

func (m *Manager) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debounce = d
}

// Load merges providers in order (later providers win) into a fresh Config,
// validates it, stores it, and starts watching every provider for changes.
func (m *Manager) Load(ctx context.Context, providers ...Provider) (*Config, error) {
	cfg, err := m.build(providers)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.providers = providers
	m.mu.Unlock()
	m.cur.Store(cfg)
	m.startWatching(ctx)
	return cfg, nil
}

func (m *Manager) build(providers []Provider) (*Config, error) {
	k := koanf.New(".")
	for _, p := range providers {
		if err := p.Load(k); err != nil {
			return nil, fmt.Errorf("load %s config: %w", p.Type(), err)
		}
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := m.Service.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration, or nil if Load has not run.
func (m *Manager) Get() *Config {
	return m.cur.Load()
}

// OnChange registers a callback invoked after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) startWatching(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	providers := m.providers
	m.mu.Unlock()

	var timer *time.Timer
	var timerMu sync.Mutex
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		m.mu.Lock()
		d := m.debounce
		m.mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, func() {
			cfg, err := m.build(providers)
			if err != nil {
				return
			}
			m.cur.Store(cfg)
			m.mu.Lock()
			listeners := append([]func(*Config){}, m.listeners...)
			m.mu.Unlock()
			for _, l := range listeners {
				l(cfg)
			}
		})
	}
	for _, p := range providers {
		_ = p.Watch(watchCtx, reload)
	}
}

// Close stops watching every provider. Safe to call multiple times.
func (m *Manager) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return nil
}
