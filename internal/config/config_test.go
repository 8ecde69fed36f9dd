package config

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, SessionStoreMemory, cfg.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.SessionSecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_Environment(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"PORT":             "8081",
		"DB_PATH":          "/tmp/p.db",
		"UPLOAD_DIR":       "/tmp/uploads",
		"SESSION_SECRET":   "a-very-long-session-secret",
		"SESSION_TTL":      "30m",
		"SESSION_STORE":    "redis",
		"REDIS_URL":        "redis://cache:6379/2",
		"BCRYPT_COST":      "10",
		"MAX_UPLOAD_BYTES": "1048576",
		"COOKIE_SECURE":    "true",
		"LOG_LEVEL":        "warn",
		"LOG_FORMAT":       "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "/tmp/p.db", cfg.DBPath)
	assert.Equal(t, "/tmp/uploads", cfg.UploadDir)
	assert.Equal(t, "a-very-long-session-secret", cfg.SessionSecret)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, SessionStoreRedis, cfg.SessionStore)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, int64(1<<20), cfg.MaxUploadBytes)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_EmptyValuesKeepDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{"PORT": "", "DB_PATH": ""}))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "data/portal.db", cfg.DBPath)
}

func TestLoadFrom_ReportsEveryParseError(t *testing.T) {
	_, err := LoadFrom(envMap(map[string]string{
		"PORT":          "eighty",
		"SESSION_TTL":   "forever",
		"COOKIE_SECURE": "maybe",
	}))
	require.Error(t, err)

	for _, key := range []string{"PORT", "SESSION_TTL", "COOKIE_SECURE"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative port", func(c *Config) { c.Port = -1 }, "port"},
		{"port too large", func(c *Config) { c.Port = 70000 }, "port"},
		{"empty db path", func(c *Config) { c.DBPath = "" }, "database path"},
		{"empty upload dir", func(c *Config) { c.UploadDir = "" }, "upload directory"},
		{"short secret", func(c *Config) { c.SessionSecret = "short" }, "session secret"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "session ttl"},
		{"unknown store", func(c *Config) { c.SessionStore = "memcached" }, "unknown session store"},
		{"redis without url", func(c *Config) { c.SessionStore = SessionStoreRedis; c.RedisURL = "" }, "redis url"},
		{"cost too low", func(c *Config) { c.BcryptCost = 3 }, "bcrypt cost"},
		{"cost too high", func(c *Config) { c.BcryptCost = 32 }, "bcrypt cost"},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }, "max upload bytes"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Port = -1
	cfg.BcryptCost = 1
	cfg.SessionStore = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 3, strings.Count(err.Error(), "\n")+1)
}

func TestEnsureSecret(t *testing.T) {
	cfg := Default()

	generated, err := cfg.EnsureSecret()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, cfg.SessionSecret, 64)
	assert.NoError(t, cfg.Validate())

	first := cfg.SessionSecret
	generated, err = cfg.EnsureSecret()
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, first, cfg.SessionSecret, "an existing secret is kept")

	other := Default()
	_, err = other.EnsureSecret()
	require.NoError(t, err)
	assert.NotEqual(t, first, other.SessionSecret)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		cfg := Default()
		cfg.LogLevel = in

		got, err := cfg.SlogLevel()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{LogFormatText, LogFormatJSON} {
		cfg := Default()
		cfg.LogFormat = format
		cfg.LogLevel = "warn"

		logger, err := cfg.NewLogger()
		require.NoError(t, err)
		assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	}
}
