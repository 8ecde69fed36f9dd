// Package main is the entry point for the account portal server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal: its job is to:
// 1. Read configuration (env vars, overridden by flags)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/account-portal/internal/config"
	"github.com/sakif/account-portal/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the "portal" command. Every flag defaults to the value
// loaded from its environment variable, so flags win over env and env wins
// over the built-in default.
func newRootCmd() *cobra.Command {
	cfg, loadErr := config.Load()

	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Run the account portal web server",
		Long: `portal serves a small account site: visitors register with a profile
and an image, log in, see a session-gated home page, and log out.

Every flag can also be set through the environment variable named in its
description.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port (env: PORT)")
	f.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file (env: DB_PATH)")
	f.StringVar(&cfg.UploadDir, "uploads", cfg.UploadDir, "Profile image directory (env: UPLOAD_DIR)")
	f.StringVar(&cfg.SessionSecret, "session-secret", cfg.SessionSecret, "Session cookie signing secret, random if empty (env: SESSION_SECRET)")
	f.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Session lifetime (env: SESSION_TTL)")
	f.StringVar(&cfg.SessionStore, "session-store", cfg.SessionStore, "Session store: memory or redis (env: SESSION_STORE)")
	f.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the redis session store (env: REDIS_URL)")
	f.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.BcryptCost, "bcrypt work factor (env: BCRYPT_COST)")
	f.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "Maximum registration request size (env: MAX_UPLOAD_BYTES)")
	f.BoolVar(&cfg.CookieSecure, "cookie-secure", cfg.CookieSecure, "Mark the session cookie Secure (env: COOKIE_SECURE)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json (env: LOG_FORMAT)")

	return cmd
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// === 1. SET UP LOGGING ===
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// === 2. SESSION SECRET ===
	// SESSION_SECRET must be a long random string. Use:
	//   SESSION_SECRET=$(openssl rand -hex 32)
	generated, err := cfg.EnsureSecret()
	if err != nil {
		return err
	}
	if generated {
		logger.Warn("SESSION_SECRET not set: using a random secret; sessions will not survive a restart")
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return fmt.Errorf("creating server: %w", err)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
