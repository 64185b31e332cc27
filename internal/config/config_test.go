package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zonehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":4400"
discovery:
  timeout: 2s
  static_ips: ["192.168.1.20", "192.168.1.21"]
  disable_scan: true
events:
  requested_timeout: 5m
log:
  level: debug
  json: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4400", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, []string{"192.168.1.20", "192.168.1.21"}, cfg.Discovery.StaticIPs)
	assert.True(t, cfg.Discovery.DisableScan)
	assert.Equal(t, 5*time.Minute, cfg.Events.RequestedTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zonehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen: ":4400"`), 0o600))

	t.Setenv("ZONEHUB_LISTEN", ":5500")
	t.Setenv("ZONEHUB_LOG_LEVEL", "warn")
	t.Setenv("ZONEHUB_DISCOVERY_TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":5500", cfg.Listen)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 750*time.Millisecond, cfg.Discovery.Timeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zonehub.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`log: {level: loud}`), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "log level")

	require.NoError(t, os.WriteFile(path, []byte(`events: {requested_timeout: 5s}`), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "at least 1m")
}
