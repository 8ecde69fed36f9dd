package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/account-portal/internal/auth"
	"github.com/sakif/account-portal/internal/model"
)

// DefaultTTL is how long a session lives when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// Config holds session gate settings.
type Config struct {
	TTL time.Duration
}

// Gate issues, resolves and destroys sessions.
//
// The token handed to the client is the session id signed by the
// TokenService. The id itself is a random UUIDv4 and carries no user data.
type Gate struct {
	store  Store
	tokens *auth.TokenService
	ttl    time.Duration
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewGate creates a Gate backed by store.
func NewGate(store Store, tokens *auth.TokenService, cfg Config, logger *slog.Logger) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Gate{
		store:  store,
		tokens: tokens,
		ttl:    cfg.TTL,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// TTL is the lifetime given to new sessions. Handlers use it for the
// cookie's Max-Age.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Establish creates session state for user and returns the token the
// client must present on later requests. The password hash is not copied
// into the session.
func (g *Gate) Establish(ctx context.Context, user *model.User) (string, error) {
	if user == nil {
		return "", errors.New("session: user must not be nil")
	}

	now := g.now()
	s := &model.Session{
		ID:        g.newID(),
		User:      user.SessionView(),
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}

	if err := g.store.Save(ctx, s); err != nil {
		return "", fmt.Errorf("session: saving session: %w", err)
	}

	token, err := g.tokens.Sign(s.ID, g.ttl)
	if err != nil {
		// Do not leave state behind that no client can ever name.
		_ = g.store.Delete(ctx, s.ID)
		return "", fmt.Errorf("session: signing token: %w", err)
	}

	g.logger.Debug("session established",
		slog.String("username", user.Username),
		slog.Time("expiresAt", s.ExpiresAt),
	)

	return token, nil
}

// Authenticate returns the user bound to token, or false when the token is
// malformed, forged, expired, destroyed or unknown. Store faults also
// report false.
func (g *Gate) Authenticate(ctx context.Context, token string) (*model.SessionUser, bool) {
	if token == "" {
		return nil, false
	}

	id, err := g.tokens.Parse(token)
	if err != nil {
		g.logger.Debug("session token rejected", slog.String("error", err.Error()))
		return nil, false
	}

	s, err := g.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.logger.Warn("session lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	if s.Expired(g.now()) {
		_ = g.store.Delete(ctx, id)
		return nil, false
	}

	user := s.User
	return &user, true
}

// Destroy invalidates the session named by token. Unknown or malformed
// tokens are not an error: the end state (no live session) is the same.
func (g *Gate) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	id, err := g.tokens.Parse(token)
	if err != nil {
		return nil
	}

	if err := g.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: deleting session: %w", err)
	}

	g.logger.Debug("session destroyed")
	return nil
}
