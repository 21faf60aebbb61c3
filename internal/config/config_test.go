package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "http://localhost:3001", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 12, cfg.Query.PageSize)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, 1500*time.Millisecond, cfg.Auth.SuccessDelay)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "8081"
  allowed_origins: ["https://canlog.example.com"]
api:
  base_url: https://canlog-backend.onrender.com
  timeout: 10s
query:
  page_size: 24
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, []string{"https://canlog.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://canlog-backend.onrender.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 24, cfg.Query.PageSize)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"8081\"\n")
	t.Setenv("CANLOG_PORT", "9090")
	t.Setenv("CANLOG_API_URL", "http://backend:3001")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://backend:3001", cfg.API.BaseURL)
}

func TestLoadConfig_RejectsRelativeAPIURL(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: /api\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestGetConfigPath_Env(t *testing.T) {
	t.Setenv("CANLOG_CONFIG", "/etc/canlog.yaml")
	assert.Equal(t, "/etc/canlog.yaml", GetConfigPath())
}
