// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the logger, then calls New, which creates:
//
//	sqlite.DB ─────────────┐
//	auth.PasswordService ──┤
//	upload.Intake ─────────┼─→ AccountService → AccountHandler
//	session store ─→ Gate ─┘                  ↘ RequireSession
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
// Nothing here is package-level state: two Servers in one process (as in
// the tests) share nothing.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/account-portal/internal/auth"
	"github.com/sakif/account-portal/internal/config"
	"github.com/sakif/account-portal/internal/handler"
	"github.com/sakif/account-portal/internal/middleware"
	sqliteRepo "github.com/sakif/account-portal/internal/repository/sqlite"
	"github.com/sakif/account-portal/internal/service"
	"github.com/sakif/account-portal/internal/session"
	"github.com/sakif/account-portal/internal/session/memory"
	redisSession "github.com/sakif/account-portal/internal/session/redis"
	"github.com/sakif/account-portal/internal/upload"
	"github.com/sakif/account-portal/web"
)

// sweepInterval is how often the in-memory session store drops expired
// sessions.
const sweepInterval = time.Minute

// compile-time check that protected routes can authenticate through the service
var _ middleware.Authenticator = (*service.AccountService)(nil)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, with SESSION_STORE=redis,
// the Redis client. Both are released by Close, which Start calls during
// graceful shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	images   *upload.Intake
	sessions session.Store
	gate     *session.Gate
	accounts *service.AccountService

	closers []func() error
}

// New creates a new Server with the given config.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the database (sqlite.New) and the content directory (upload.New)
//  2. Build the password hasher and the token signer
//  3. Pick the session store (memory or redis) and wrap it in the Gate
//  4. Create the AccountService and its handler
//  5. Wire handlers to routes
//
// cfg.SessionSecret must already be set (see config.EnsureSecret).
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	if err := s.build(); err != nil {
		s.Close() // Clean up whatever was opened before the failure
		return nil, err
	}

	return s, nil
}

func (s *Server) build() error {
	cfg := s.config

	// === DATABASE ===
	if cfg.DBPath != ":memory:" {
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	s.db = db
	s.closers = append(s.closers, db.Close)

	// === IMAGE INTAKE ===
	uploadCfg := upload.DefaultConfig()
	uploadCfg.Dir = cfg.UploadDir
	images, err := upload.New(uploadCfg, s.logger)
	if err != nil {
		return fmt.Errorf("opening upload directory: %w", err)
	}
	s.images = images

	// === CREDENTIALS ===
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}
	tokens, err := auth.NewTokenService(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// === SESSIONS ===
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		redisCfg := redisSession.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		store, err := redisSession.New(redisCfg)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		s.sessions = store
		s.closers = append(s.closers, store.Close)
	default:
		s.sessions = memory.New()
	}
	s.gate = session.NewGate(s.sessions, tokens, session.Config{TTL: cfg.SessionTTL}, s.logger)

	// === SERVICE ===
	s.accounts = service.NewAccountService(s.db, passwords, s.images, s.gate, s.logger)

	// Set up middleware and routes
	if err := s.setupRoutes(); err != nil {
		return fmt.Errorf("setting up routes: %w", err)
	}
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /            → 303 /home
// GET    /register    → registration form
// POST   /register    → registration (multipart, file field "image")
// GET    /login       → login form
// POST   /login       → login, sets the session cookie
// GET    /home        → profile page (RequireSession, else 303 /login)
// GET    /logout      → destroy session, 303 /login
// GET    /static/*    → embedded CSS
// GET    /uploads/*   → stored profile images
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// === Static Files ===
	// GET /static/css/style.css → serves web/static/css/style.css from the binary
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	// === Uploaded Images ===
	// Stored names never contain a separator, and http.Dir refuses to leave
	// its root, so /uploads/* only ever serves files from the content directory.
	s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", noDirListing(http.FileServer(http.Dir(s.images.Dir())))))

	// === Page Routes ===
	pages, err := handler.NewPages(web.Templates(), s.logger)
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	accountHandler := handler.NewAccountHandler(s.accounts, pages, handler.AccountConfig{
		SessionTTL:     s.gate.TTL(),
		CookieSecure:   s.config.CookieSecure,
		MaxUploadBytes: s.config.MaxUploadBytes,
	}, s.logger)

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})

	s.router.Get("/register", accountHandler.ShowRegister)
	s.router.Post("/register", accountHandler.Register)
	s.router.Get("/login", accountHandler.ShowLogin)
	s.router.Post("/login", accountHandler.Login)
	s.router.Get("/logout", accountHandler.Logout)

	// Protected routes: the session is re-checked on every request.
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.accounts, "/login"))
		r.Get("/home", accountHandler.Home)
	})

	return nil
}

// noDirListing answers 404 for directory paths instead of an index page.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and session store connections.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the session sweeper and close the database and Redis
func (s *Server) Start() error {
	// Ensure resources are released when the server stops.
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if mem, ok := s.sessions.(*memory.Store); ok {
		go mem.RunSweeper(ctx, sweepInterval)
	}

	// Create the HTTP server with sensible timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("uploads", s.images.Dir()),
			slog.String("sessionStore", s.config.SessionStore),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
