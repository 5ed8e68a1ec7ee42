package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points the env file at an empty temp dir and clears overrides.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvFile, filepath.Join(dir, "missing.env"))
	for _, key := range []string{EnvPort, EnvAuthTokens, EnvAdminTokens, EnvImagesDir, EnvLogLevel} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	dir := isolateEnv(t)

	cfg, err := LoadConfig(filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 14, cfg.ImageRetentionDays)
	assert.Equal(t, int64(5<<20), cfg.UploadMaxBytes())
}

func TestLoadConfig_JSON(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"web_port": 9000,
		"auth_tokens": ["a", "b"],
		"locations": {"garden": {"title": "Garden"}},
		"image_retention_days": 3
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.WebPort)
	assert.Equal(t, []string{"a", "b"}, cfg.AuthTokens)
	assert.Equal(t, "Garden", cfg.Locations["garden"].Title)
	assert.Equal(t, 3, cfg.ImageRetentionDays)
	assert.Equal(t, "images", cfg.ImagesDir, "unset fields keep defaults")
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"web_port: 8181\n"+
			"registry_backend: sqlite\n"+
			"auth_tokens:\n"+
			"  - yaml-token\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.WebPort)
	assert.Equal(t, RegistryBackendSQLite, cfg.RegistryBackend)
	assert.Equal(t, []string{"yaml-token"}, cfg.AuthTokens)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvAuthTokens, " one, ,two ")
	t.Setenv(EnvImagesDir, "/srv/images")

	cfg, err := LoadConfig(filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.WebPort)
	assert.Equal(t, []string{"one", "two"}, cfg.AuthTokens)
	assert.Equal(t, "/srv/images", cfg.ImagesDir)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := isolateEnv(t)
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("WEBCAM_ADMIN_TOKENS_FROM_FILE=x\n"), 0644))
	t.Setenv(EnvFile, envPath)
	t.Setenv("WEBCAM_ADMIN_TOKENS_FROM_FILE", "")
	os.Unsetenv("WEBCAM_ADMIN_TOKENS_FROM_FILE")

	_, err := LoadConfig(filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "x", os.Getenv("WEBCAM_ADMIN_TOKENS_FROM_FILE"))
}

func TestLoadConfig_BadPort(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv(EnvPort, "eighty")

	_, err := LoadConfig(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(c *Config){
		"port":      func(c *Config) { c.WebPort = 0 },
		"backend":   func(c *Config) { c.RegistryBackend = "redis" },
		"log level": func(c *Config) { c.LogLevel = "loud" },
		"retention": func(c *Config) { c.ImageRetentionDays = 0 },
		"max size":  func(c *Config) { c.UploadMaxSizeMB = 0 },
		"interval":  func(c *Config) { c.PurgeInterval = "daily" },
		"thumbnail": func(c *Config) { c.ThumbnailMaxWidth = 0 },
		"audit":     func(c *Config) { c.AuditFormat = "xml" },
		"images":    func(c *Config) { c.ImagesDir = " " },
		"smtp from": func(c *Config) { c.Notifications = NotificationSettings{SMTPHost: "mail", Recipient: "a@b"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := isolateEnv(t)

	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			cfg := DefaultConfig()
			cfg.AuthTokens = []string{"tok"}
			cfg.Locations = map[string]Location{"front": {Title: "Front", Description: "Street side"}}
			require.NoError(t, cfg.SaveConfig(path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestNotificationSettings(t *testing.T) {
	n := DefaultConfig().Notifications
	assert.False(t, n.Enabled())
	assert.Equal(t, time.Hour, n.MinInterval())

	n.SMTPHost = "mail.example.com"
	assert.False(t, n.Enabled(), "a recipient is required too")
	n.Recipient = "ops@example.com"
	assert.True(t, n.Enabled())
}
