package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "SIMULATED", cfg.Mode)
}

func TestLoadFromFileYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
server:
  addr: ":8080"
mode: live
order:
  worker_url: "https://orders.internal/execute"
  internal_key: "secret"
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "LIVE", cfg.Mode, "mode is normalized to upper case")
	assert.Equal(t, "./data/trades.db", cfg.Journal.Path, "defaults fill unset fields")
}

func TestLoadFromFileJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"server":{"addr":":9000"}}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadFromFileRejectsBadMode(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", "mode: paper\n")
	_, err := LoadFromFile(path)
	assert.ErrorContains(t, err, "mode must be SIMULATED or LIVE")
}

func TestValidateLiveRequiresWorker(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Mode = "LIVE"
	assert.ErrorContains(t, cfg.Validate(), "order.worker_url")
}

func TestDataPaths(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Data.Dir = "/var/lib/optrade"
	assert.Equal(t, "/var/lib/optrade/accounts.json", cfg.AccountsPath())
	assert.Equal(t, "/var/lib/optrade/selected_instruments.json", cfg.SelectionPath())
	assert.Equal(t, "/var/lib/optrade/settings.json", cfg.SettingsPath())
}
