package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	koanf "github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Source names a configuration provider, used purely for diagnostics.
type Source string

const (
	SourceDefault Source = "default"
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
)

// envPrefix is the prefix of the generic env keys (TASKINDEX_ followed by
// the config path, with "__" as the level separator). The §6 keys
// (ROO_EXTENSIONS_PATH, SHARED_STATE_PATH, ROOSYNC_SHARED_PATH,
// ROOSYNC_MACHINE_ID) do not carry it and are mapped explicitly by
// loadLegacyEnvKeys.
const envPrefix = "TASKINDEX_"

// Provider loads a fragment of configuration into a koanf instance.
type Provider interface {
	Load(k *koanf.Koanf) error
	Type() Source
	// Watch invokes onChange whenever the underlying source changes.
	// Providers with no notion of change (defaults, env) return nil
	// immediately.
	Watch(ctx context.Context, onChange func()) error
}

// defaultProvider loads Default() via the structs provider.
type defaultProvider struct{}

func NewDefaultProvider() Provider { return &defaultProvider{} }

func (defaultProvider) Load(k *koanf.Koanf) error {
	return k.Load(structs.Provider(Default(), "koanf"), nil)
}

func (defaultProvider) Type() Source { return SourceDefault }

func (defaultProvider) Watch(context.Context, func()) error { return nil }

// envProvider loads TASKINDEX_*-prefixed env vars plus the legacy §6 keys.
type envProvider struct{}

func NewEnvProvider() Provider { return &envProvider{} }

func (envProvider) Load(k *koanf.Koanf) error {
	provider := envprovider.Provider(".", envPrefix, func(s string) string {
		trimmed := strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(strings.ReplaceAll(trimmed, "__", "."))
	})
	if err := k.Load(provider, nil); err != nil {
		return err
	}
	return loadLegacyEnvKeys(k)
}

func (envProvider) Type() Source { return SourceEnv }

func (envProvider) Watch(context.Context, func()) error { return nil }

// loadLegacyEnvKeys maps the §6 environment keys that do not carry the
// TASKINDEX_ prefix because they are shared with peripheral collectors
// outside the CORE.
func loadLegacyEnvKeys(k *koanf.Koanf) error {
	set := func(path, envKey string) error {
		if v, ok := os.LookupEnv(envKey); ok && v != "" {
			return k.Set(path, v)
		}
		return nil
	}
	if err := set("storage.workspace_root_override", "ROO_EXTENSIONS_PATH"); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("ROOSYNC_SHARED_PATH"); ok && v != "" {
		if err := k.Set("storage.shared_state_path", v); err != nil {
			return err
		}
	} else if err := set("storage.shared_state_path", "SHARED_STATE_PATH"); err != nil {
		return err
	}
	return set("storage.machine_id", "ROOSYNC_MACHINE_ID")
}

// fileProvider loads an optional YAML configuration file.
type fileProvider struct {
	path string
}

func NewFileProvider(path string) Provider { return &fileProvider{path: path} }

func (p *fileProvider) Load(k *koanf.Koanf) error {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", p.path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", p.path, err)
	}
	if raw == nil {
		return nil
	}
	return k.Load(mapProvider(raw), nil)
}

func (p *fileProvider) Type() Source { return SourceFile }

// rawMapProvider adapts an already-parsed map[string]any to koanf.Provider
// so the YAML file provider can hand koanf a tree it parsed itself; CORE
// config has no $ref directives, so no dollar-key rejection is needed here.
type rawMapProvider struct {
	m map[string]any
}

func mapProvider(m map[string]any) koanf.Provider {
	return &rawMapProvider{m: m}
}

func (p *rawMapProvider) Read() (map[string]any, error) {
	return p.m, nil
}

func (p *rawMapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawMapProvider does not support ReadBytes")
}

func dirOf(path string) string {
	dir := filepath.Dir(path)
	if dir == "" {
		return "."
	}
	return dir
}

// Watch watches the file for writes/creates and invokes onChange on each
// event, until ctx is done. Missing files are tolerated (the watch starts
// on the parent directory and simply never fires).
func (p *fileProvider) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dir := dirOf(p.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name == p.path && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
