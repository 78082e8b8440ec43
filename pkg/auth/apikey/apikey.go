// Package apikey provides a service key authenticator for internal
// automation (import jobs, maintenance scripts). Keys are bearer tokens
// with the "dsk_" prefix, validated against a static store using SHA-256
// hashing and constant-time comparison.
//
// Tokens without the prefix are left to the next authenticator, so the
// service key and JWT authenticators can share the Authorization header.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/auth"
)

// KeyPrefix marks a bearer token as a service key.
const KeyPrefix = "dsk_"

// KeyEntry maps a key hash to the principal it authenticates as.
type KeyEntry struct {
	KeyHash [32]byte
	UserID  string
	Role    api.Role
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys []KeyEntry
}

// RawKeyEntry is the configuration format for service keys.
type RawKeyEntry struct {
	Key    string
	UserID string
	Role   api.Role
}

// New creates a service key authenticator from a list of raw keys.
// Keys are hashed immediately; plaintext keys are not stored.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		a.keys = append(a.keys, KeyEntry{
			KeyHash: sha256.Sum256([]byte(e.Key)),
			UserID:  e.UserID,
			Role:    e.Role,
		})
	}
	return a
}

// Authenticate extracts the bearer token and validates it.
// Returns Yes if valid, No if a prefixed key is present but unknown,
// Abstain if there is no bearer token or it is not a service key.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := auth.BearerToken(r)
	if !ok || !strings.HasPrefix(token, KeyPrefix) {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	// Hash the token and compare against every stored hash.
	tokenHash := sha256.Sum256([]byte(token))

	match := -1
	for i, entry := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.KeyHash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrTokenInvalid}
	}

	entry := a.keys[match]
	return auth.AuthResult{
		Decision: auth.Yes,
		Principal: &auth.Principal{
			UserID: entry.UserID,
			Role:   entry.Role,
			Method: auth.MethodAPIKey,
		},
	}
}
