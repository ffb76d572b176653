package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Transport.Mode)
	assert.Equal(t, 5, cfg.Monitor.PollIntervalSeconds)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 1, cfg.TaskBoard.Workers)
	assert.Equal(t, "", cfg.Transport.AuthToken)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specindex.toml")
	contents := `
[transport]
mode = "http"
port = "9090"
auth_token = "secret"

[task_board]
workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Transport.Mode)
	assert.Equal(t, "9090", cfg.Transport.Port)
	assert.Equal(t, "secret", cfg.Transport.AuthToken)
	assert.Equal(t, 4, cfg.TaskBoard.Workers)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specindex.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[transport]
mode = "http"
`), 0o644))

	t.Setenv("SPECINDEX_TRANSPORT", "stdio")
	t.Setenv("SPECINDEX_TASKBOARD_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stdio", cfg.Transport.Mode)
	assert.Equal(t, 8, cfg.TaskBoard.Workers)
}

func TestValidateRejectsBadTransportMode(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Mode: "carrier-pigeon"}, Monitor: MonitorConfig{PollIntervalSeconds: 1}, TaskBoard: TaskBoardConfig{Workers: 1}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveWorkers(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Mode: "stdio"}, Monitor: MonitorConfig{PollIntervalSeconds: 1}, TaskBoard: TaskBoardConfig{Workers: 0}}
	assert.Error(t, cfg.Validate())
}
