// Package config loads the server settings from the environment.
//
// Every setting has a default, so the server starts with no environment
// at all. cmd/server exposes each one as a flag whose default is the value
// loaded here, so a flag beats its env var and an env var beats the
// built-in default.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Session store kinds accepted by SESSION_STORE.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Log formats accepted by LOG_FORMAT.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// MinSessionSecretLength matches auth.MinSecretLength.
const MinSessionSecretLength = 16

// Config holds every runtime setting of the server.
type Config struct {
	Port      int
	DBPath    string
	UploadDir string

	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string
	RedisURL      string

	BcryptCost     int
	MaxUploadBytes int64
	CookieSecure   bool

	LogLevel  string
	LogFormat string
}

// Default returns the built-in defaults. SessionSecret is left empty;
// see EnsureSecret.
func Default() Config {
	return Config{
		Port:           3000,
		DBPath:         "data/portal.db",
		UploadDir:      "data/uploads",
		SessionTTL:     24 * time.Hour,
		SessionStore:   SessionStoreMemory,
		RedisURL:       "redis://localhost:6379/0",
		BcryptCost:     12,
		MaxUploadBytes: 5 << 20,
		CookieSecure:   false,
		LogLevel:       "debug",
		LogFormat:      LogFormatText,
	}
}

// Load reads the environment on top of Default.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an injectable lookup, for tests.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DB_PATH", &cfg.DBPath)
	str("UPLOAD_DIR", &cfg.UploadDir)
	str("SESSION_SECRET", &cfg.SessionSecret)
	str("SESSION_STORE", &cfg.SessionStore)
	str("REDIS_URL", &cfg.RedisURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v) // Atoi = ASCII to Integer
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %w", err))
		}
		cfg.Port = port
	}

	if v, ok := lookup("BCRYPT_COST"); ok && v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BCRYPT_COST: %w", err))
		}
		cfg.BcryptCost = cost
	}

	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
		}
		cfg.MaxUploadBytes = n
	}

	if v, ok := lookup("SESSION_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_TTL: %w", err))
		}
		cfg.SessionTTL = ttl
	}

	if v, ok := lookup("COOKIE_SECURE"); ok && v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COOKIE_SECURE: %w", err))
		}
		cfg.CookieSecure = secure
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 0 and 65535, got %d", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path must not be empty"))
	}
	if c.UploadDir == "" {
		errs = append(errs, errors.New("upload directory must not be empty"))
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < MinSessionSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d characters", MinSessionSecretLength))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL))
	}
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis url is required when the session store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q (want %q or %q)",
			c.SessionStore, SessionStoreMemory, SessionStoreRedis))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (want %q or %q)",
			c.LogFormat, LogFormatText, LogFormatJSON))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// EnsureSecret fills an empty SessionSecret with 32 random bytes, hex
// encoded, and reports whether it did. A generated secret lives only as
// long as the process, so every restart logs everybody out.
func (c *Config) EnsureSecret() (bool, error) {
	if c.SessionSecret != "" {
		return false, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("config: generating session secret: %w", err)
	}
	c.SessionSecret = hex.EncodeToString(b)
	return true, nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger builds the process logger: a text handler by default, JSON
// when LogFormat is "json".
func (c Config) NewLogger() (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}
