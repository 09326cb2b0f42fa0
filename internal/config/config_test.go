package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8765, cfg.WS.Port)
	assert.Equal(t, 100, cfg.Cache.LRUMaxSize)
	assert.False(t, cfg.WS.RequireAuth)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Deployment)
}

func TestLoad_ParsesYAMLAndAppliesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deployment: staging\nwebsocket:\n  port: 9000\n"), 0o644))

	t.Setenv("WEBSOCKET_PORT", "9500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Deployment)
	assert.Equal(t, 9500, cfg.WS.Port, "env var must win over file value")
}

func TestEnvOverrides_WebSocket(t *testing.T) {
	t.Run("require_auth parses bool", func(t *testing.T) {
		cfg := &Config{}
		t.Setenv("WEBSOCKET_REQUIRE_AUTH", "true")
		cfg.applyEnvOverrides()
		assert.True(t, cfg.WS.RequireAuth)
	})

	t.Run("allowed_origins splits CSV", func(t *testing.T) {
		cfg := &Config{}
		t.Setenv("WEBSOCKET_ALLOWED_ORIGINS", "https://a.example,https://b.example")
		cfg.applyEnvOverrides()
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WS.AllowedOrigins)
	})

	t.Run("invalid port is ignored", func(t *testing.T) {
		cfg := &Config{WS: WebSocketConfig{Port: 1234}}
		t.Setenv("WEBSOCKET_PORT", "not-a-number")
		cfg.applyEnvOverrides()
		assert.Equal(t, 1234, cfg.WS.Port)
	})
}

func TestEnvOverrides_DeploymentPrecedence(t *testing.T) {
	cfg := &Config{}
	t.Setenv("ZOLO_ENV", "env-value")
	t.Setenv("ZOLO_DEPLOYMENT", "deployment-value")
	cfg.applyEnvOverrides()
	assert.Equal(t, "deployment-value", cfg.Deployment)
}
