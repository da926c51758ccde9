package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

// setupTestHome points HOME at a temp dir and returns the taskbot config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "taskbot")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  http_port: 8088
oracle:
  provider: anthropic
  api_key: sk-ant-test
  timeout: 45s
cache:
  backend: redis
  redis_addr: localhost:6379
session:
  idle_timeout: 2h
destinations:
  provider: file
  path: /etc/taskbot/destinations.yaml
vocabulary:
  keywords:
    project: [project]
    deadline: [due]
    priority: [urgent]
  priority:
    high: [urgent]
    medium: [soon]
    low: [someday]
  project_terms: [project]
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, OracleAnthropic, cfg.Oracle.Provider)
	assert.Equal(t, "sk-ant-test", cfg.Oracle.APIKey.Value())
	assert.Equal(t, 45*time.Second, cfg.Oracle.Timeout.Duration())
	assert.Equal(t, "claude-sonnet-4-5", cfg.Oracle.Model)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTimeout.Duration())
	assert.Equal(t, 30*time.Minute, cfg.Session.SweepInterval.Duration())
	require.NotNil(t, cfg.Vocabulary)
	assert.Equal(t, []string{"urgent"}, cfg.Vocabulary.Priority[extraction.PriorityHigh])
}

func TestLoadWithFile_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("TASKBOT_ORACLE_API_KEY", "sk-from-env")
	t.Setenv("TASKBOT_DESTINATIONS_PATH", "/etc/taskbot/destinations.yaml")
	t.Setenv("TASKBOT_SERVER_HTTP_PORT", "9191")

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.Oracle.APIKey.Value())
	assert.Equal(t, OracleOpenAI, cfg.Oracle.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, DestinationsLog, cfg.Destinations.Committer)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.PreferenceTTL.Duration())
	assert.False(t, cfg.Secrets.Disabled)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
oracle:
  api_key: from-file
  model: gpt-4o
destinations:
  path: /etc/taskbot/d.yaml
`, 0600)
	t.Setenv("TASKBOT_ORACLE_MODEL", "gpt-4.1")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.Oracle.Model)
	assert.Equal(t, "from-file", cfg.Oracle.APIKey.Value())
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9090\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_TooLarge(t *testing.T) {
	dir := setupTestHome(t)
	big := make([]byte, maxConfigFileSize+10)
	for i := range big {
		big[i] = '#'
	}
	path := writeConfig(t, dir, string(big), 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadWithFile_InvalidConfig(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
oracle:
  provider: mystery
`, 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown oracle provider")
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)

	valid := []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "prod", "config.yaml"),
		"/etc/taskbot/config.yaml",
	}
	for _, p := range valid {
		assert.NoError(t, validateConfigPath(p), p)
	}

	invalid := []string{
		"/etc/taskbot../passwd",
		filepath.Join(dir, "..", "..", "config.yaml"),
		"/tmp/config.yaml",
	}
	for _, p := range invalid {
		assert.Error(t, validateConfigPath(p), p)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "oracle.api_key", envKey("TASKBOT_ORACLE_API_KEY"))
	assert.Equal(t, "server.http_port", envKey("TASKBOT_SERVER_HTTP_PORT"))
	assert.Equal(t, "debug", envKey("TASKBOT_DEBUG"))
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "taskbot"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
