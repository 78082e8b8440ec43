// Package memory provides an in-memory user directory and reset token
// store for tests and single-instance deployments. Everything is lost
// when the process restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/digsite/pkg/account"
	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/storage"
)

// Store keeps users and reset tokens in maps guarded by one mutex. Values
// are copied in and out so callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*api.User // by id
	byEmail map[string]string    // normalised email -> id
	tokens  map[string]*account.ResetToken
}

// Ensure Store implements the account storage interfaces at compile time.
var (
	_ account.UserDirectory   = (*Store)(nil)
	_ account.ResetTokenStore = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:   make(map[string]*api.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*account.ResetToken),
	}
}

// CreateUser stores a new user. Returns ErrConflict if the id or email is
// already taken.
func (s *Store) CreateUser(_ context.Context, u *api.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return storage.ErrConflict
	}
	if _, exists := s.byEmail[u.Email]; exists {
		return storage.ErrConflict
	}

	c := *u
	s.users[u.ID] = &c
	s.byEmail[u.Email] = u.ID
	return nil
}

// GetUserByID returns a copy of the user or ErrNotFound.
func (s *Store) GetUserByID(_ context.Context, id string) (*api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetUserByEmail returns a copy of the user or ErrNotFound.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *s.users[id]
	return &c, nil
}

// UpdateProfile overwrites the profile fields of the stored user.
func (s *Store) UpdateProfile(_ context.Context, u *api.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return storage.ErrNotFound
	}
	cur.FullName = u.FullName
	cur.Institution = u.Institution
	cur.Phone = u.Phone
	cur.Website = u.Website
	cur.Bio = u.Bio
	cur.Specialization = u.Specialization
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(_ context.Context, userID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	return nil
}

// ReplacePassword replaces the stored password hash and consumes the
// user's outstanding reset tokens.
func (s *Store) ReplacePassword(_ context.Context, userID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	s.invalidateLocked(userID, at)
	return nil
}

// CreateResetToken stores t and marks the user's other outstanding tokens
// consumed.
func (s *Store) CreateResetToken(_ context.Context, t *account.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.TokenHash]; exists {
		return storage.ErrConflict
	}
	if _, ok := s.users[t.UserID]; !ok {
		return storage.ErrNotFound
	}
	s.invalidateLocked(t.UserID, t.IssuedAt)

	c := *t
	c.ConsumedAt = nil
	s.tokens[t.TokenHash] = &c
	return nil
}

// GetResetToken returns a copy of the token or ErrNotFound.
func (s *Store) GetResetToken(_ context.Context, tokenHash string) (*account.ResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *t
	if t.ConsumedAt != nil {
		at := *t.ConsumedAt
		c.ConsumedAt = &at
	}
	return &c, nil
}

// ConsumeResetToken checks the token, consumes it, and writes the new
// password hash under a single lock.
func (s *Store) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenHash]
	if !ok || !t.ValidAt(now) {
		return storage.ErrNotFound
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return storage.ErrNotFound
	}

	u.PasswordHash = newHash
	u.UpdatedAt = now
	s.invalidateLocked(t.UserID, now)
	return nil
}

// PurgeResetTokens deletes tokens expired or consumed before the cutoff.
func (s *Store) PurgeResetTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.tokens {
		if t.ExpiresAt.Before(before) || (t.ConsumedAt != nil && t.ConsumedAt.Before(before)) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// invalidateLocked consumes every outstanding token of userID.
// Must be called with s.mu held.
func (s *Store) invalidateLocked(userID string, at time.Time) {
	for _, t := range s.tokens {
		if t.UserID == userID && t.ConsumedAt == nil {
			ts := at
			t.ConsumedAt = &ts
		}
	}
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
