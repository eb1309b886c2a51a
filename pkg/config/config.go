// Package config centralizes every tunable recognized by the CORE (§6):
// storage discovery overrides, the anti-leak cache ceiling and intervals,
// the hierarchy reconstruction deadline, and runtime/logging knobs. It is
// deliberately NOT a package-level singleton — per the §9 "Module-level
// mutable singletons" redesign flag, a Manager is an owned value built once
// by the binary, and the *Config it loads is passed by reference to the
// composition root.
package config

import "time"

// Config is the root configuration tree.
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	AntiLeak  AntiLeakConfig  `koanf:"anti_leak"`
	Hierarchy HierarchyConfig `koanf:"hierarchy"`
	Queue     QueueConfig     `koanf:"queue"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
}

// StorageConfig governs §6 host-storage discovery.
type StorageConfig struct {
	// WorkspaceRootOverride corresponds to ROO_EXTENSIONS_PATH.
	WorkspaceRootOverride string `koanf:"workspace_root_override"`
	// SharedStatePath corresponds to SHARED_STATE_PATH / ROOSYNC_SHARED_PATH.
	SharedStatePath string `koanf:"shared_state_path"`
	// MachineID corresponds to ROOSYNC_MACHINE_ID.
	MachineID string `koanf:"machine_id"`
}

// AntiLeakConfig governs §4.E.
type AntiLeakConfig struct {
	Enabled                  bool          `koanf:"enabled"`
	CeilingGB                float64       `koanf:"ceiling_gb"`
	AlertThresholdGB         float64       `koanf:"alert_threshold_gb"`
	TTLSweepInterval         time.Duration `koanf:"ttl_sweep_interval"`
	ConsistencyAuditInterval time.Duration `koanf:"consistency_audit_interval"`
	ProcessingTimeout        time.Duration `koanf:"processing_timeout"`
}

// HierarchyConfig governs §4.D / §5 deadlines.
type HierarchyConfig struct {
	ReconstructionDeadline time.Duration `koanf:"reconstruction_deadline"`
	PrefixLength           int           `koanf:"prefix_length"`
}

// QueueConfig governs §4.F.
type QueueConfig struct {
	Enabled      bool `koanf:"enabled"`
	DefaultBatch int  `koanf:"default_batch"`
}

// RuntimeConfig governs ambient logging behavior.
type RuntimeConfig struct {
	LogLevel string `koanf:"log_level"`
	JSONLogs bool   `koanf:"json_logs"`
}

// Default returns the §4.E / §4.D / §6 default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{},
		AntiLeak: AntiLeakConfig{
			Enabled:                  true,
			CeilingGB:                220,
			AlertThresholdGB:         200,
			TTLSweepInterval:         5 * time.Minute,
			ConsistencyAuditInterval: 24 * time.Hour,
			ProcessingTimeout:        30 * time.Second,
		},
		Hierarchy: HierarchyConfig{
			ReconstructionDeadline: 300 * time.Second,
			PrefixLength:           192,
		},
		Queue: QueueConfig{
			Enabled:      true,
			DefaultBatch: 50,
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
			JSONLogs: false,
		},
	}
}
