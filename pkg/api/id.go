package api

import (
	"crypto/rand"
	"encoding/base64"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// resetTokenBytes is the entropy of a password reset token.
const resetTokenBytes = 32

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewUserID generates a random (v4) UUID for a new user.
func NewUserID() string {
	return uuid.NewString()
}

// ValidateUserID checks whether id is a well-formed UUID.
func ValidateUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewULID returns a lexicographically sortable identifier, used for request
// ids and token ids. Not suitable as a secret.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewResetToken returns a high-entropy, URL-safe opaque token.
func NewResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
