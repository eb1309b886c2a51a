package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Creation(t *testing.T) {
	t.Run("Should create manager with default service", func(t *testing.T) {
		m := NewManager(nil)
		require.NotNil(t, m.Service)
		assert.Equal(t, 100*time.Millisecond, m.debounce)
		require.NoError(t, m.Close(context.Background()))
	})

	t.Run("Should keep a custom service", func(t *testing.T) {
		svc := NewService()
		m := NewManager(svc)
		assert.Same(t, svc, m.Service)
		require.NoError(t, m.Close(context.Background()))
	})

	t.Run("Should allow reconfiguring the debounce window", func(t *testing.T) {
		m := NewManager(nil)
		defer m.Close(context.Background())
		m.SetDebounce(500 * time.Millisecond)
		assert.Equal(t, 500*time.Millisecond, m.debounce)
	})
}

func TestManager_Load(t *testing.T) {
	t.Run("Should load defaults", func(t *testing.T) {
		m := NewManager(nil)
		defer m.Close(context.Background())

		cfg, err := m.Load(context.Background(), NewDefaultProvider())
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, 220.0, cfg.AntiLeak.CeilingGB)
	})

	t.Run("Should store the loaded config for Get", func(t *testing.T) {
		m := NewManager(nil)
		defer m.Close(context.Background())
		assert.Nil(t, m.Get())

		cfg, err := m.Load(context.Background(), NewDefaultProvider())
		require.NoError(t, err)
		assert.Equal(t, cfg, m.Get())
	})

	t.Run("Should let a file provider override defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "taskindex.yaml")
		require.NoError(t, os.WriteFile(path, []byte("anti_leak:\n  ceiling_gb: 50\n"), 0o600))

		m := NewManager(nil)
		defer m.Close(context.Background())
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewFileProvider(path))
		require.NoError(t, err)
		assert.Equal(t, 50.0, cfg.AntiLeak.CeilingGB)
	})

	t.Run("Should let env override file and defaults", func(t *testing.T) {
		t.Setenv("TASKINDEX_ANTI_LEAK__CEILING_GB", "10")

		m := NewManager(nil)
		defer m.Close(context.Background())
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, 10.0, cfg.AntiLeak.CeilingGB)
	})

	t.Run("Should surface validation errors", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "taskindex.yaml")
		require.NoError(t, os.WriteFile(path, []byte("anti_leak:\n  ceiling_gb: 0\n"), 0o600))

		m := NewManager(nil)
		defer m.Close(context.Background())
		_, err := m.Load(context.Background(), NewDefaultProvider(), NewFileProvider(path))
		require.Error(t, err)
	})
}

func TestManager_OnChange(t *testing.T) {
	t.Run("Should invoke listeners after a debounced file reload", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "taskindex.yaml")
		require.NoError(t, os.WriteFile(path, []byte("anti_leak:\n  ceiling_gb: 50\n"), 0o600))

		m := NewManager(nil)
		m.SetDebounce(10 * time.Millisecond)
		defer m.Close(context.Background())

		changed := make(chan *Config, 1)
		m.OnChange(func(c *Config) { changed <- c })

		_, err := m.Load(context.Background(), NewDefaultProvider(), NewFileProvider(path))
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("anti_leak:\n  ceiling_gb: 75\n"), 0o600))

		select {
		case cfg := <-changed:
			assert.Equal(t, 75.0, cfg.AntiLeak.CeilingGB)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for config reload")
		}
	})
}
