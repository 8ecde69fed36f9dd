// Package memory is an in-process session.Store. Sessions do not survive a
// restart; that matches the default behaviour of the server.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/account-portal/internal/model"
	"github.com/sakif/account-portal/internal/session"
)

// Store keeps sessions in a map guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]model.Session),
		now:      time.Now,
	}
}

// Ensure Store implements the interface
var _ session.Store = (*Store)(nil)

// Save stores a copy of s, replacing any session with the same id.
func (s *Store) Save(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

// Get returns a copy of the session, or session.ErrNotFound when it is
// missing or expired.
func (s *Store) Get(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.Expired(s.now()) {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
