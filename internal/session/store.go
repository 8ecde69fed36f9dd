// Package session implements the session gate: it turns a verified login
// into server-held session state, answers "who is this token?" on every
// protected request, and forgets the state on logout.
//
// State machine per client:
//
//	Anonymous --Establish--> Authenticated --Destroy / expiry--> Anonymous
//
// The gate is constructed once in server.New and injected into the account
// service and the RequireSession middleware. There is no package-level
// session state.
package session

import (
	"context"
	"errors"

	"github.com/sakif/account-portal/internal/model"
)

// ErrNotFound is returned by a Store when the id is unknown or the session
// has expired.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions by id. Implementations must be safe for
// concurrent use; see session/memory and session/redis.
type Store interface {
	Save(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}
