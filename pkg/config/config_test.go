package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "goose.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.Equal(t, "localhost:50051", cfg.Runner.Addr)
	assert.Equal(t, ".goose/history", cfg.History.Dir)
	assert.GreaterOrEqual(t, cfg.Queue.WorkerCount, 1)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goose.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
queue:
  worker_count: 3
runner:
  call_timeout: 5s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Queue.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.Runner.CallTimeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "localhost:50051", cfg.Runner.Addr)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "goose.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Queue.WorkerCount = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Runner.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.History.Dir = ""
	assert.Error(t, cfg.Validate())
}
