package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rhuss/digsite/pkg/api"
)

// UserDirectory stores user records. Emails are passed already normalised.
//
// Implementations return storage.ErrNotFound for missing users and
// storage.ErrConflict when CreateUser hits an existing email.
type UserDirectory interface {
	CreateUser(ctx context.Context, u *api.User) error
	GetUserByID(ctx context.Context, id string) (*api.User, error)
	GetUserByEmail(ctx context.Context, email string) (*api.User, error)

	// UpdateProfile persists the profile fields and UpdatedAt of u. Email,
	// role, plan, and password hash are left untouched.
	UpdateProfile(ctx context.Context, u *api.User) error

	UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error
}

// ResetToken is a stored password reset token. Only the hash of the token
// is kept.
type ResetToken struct {
	TokenHash  string
	UserID     string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// ValidAt reports whether the token can still be consumed at now.
func (t *ResetToken) ValidAt(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}

// ResetTokenStore stores password reset tokens.
type ResetTokenStore interface {
	// CreateResetToken stores t and invalidates every other outstanding
	// token of the same user.
	CreateResetToken(ctx context.Context, t *ResetToken) error

	GetResetToken(ctx context.Context, tokenHash string) (*ResetToken, error)

	// ConsumeResetToken marks the token consumed and sets the owner's
	// password hash to newHash as one atomic step. It returns
	// storage.ErrNotFound when the token is unknown, consumed, or expired
	// at now; in that case nothing is changed.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newHash string) error

	// ReplacePassword sets the user's password hash and consumes every
	// outstanding reset token of that user as one atomic step. It returns
	// storage.ErrNotFound for an unknown user.
	ReplacePassword(ctx context.Context, userID, hash string, at time.Time) error

	// PurgeResetTokens deletes tokens that expired or were consumed before
	// the given time and returns how many were removed.
	PurgeResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// HashResetToken returns the at-rest form of a reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
