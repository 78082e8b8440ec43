package password

import (
	"context"
	"strings"
)

// Multi hashes with a primary algorithm and verifies hashes of any
// algorithm it holds, dispatching on the hash prefix.
type Multi struct {
	primary Hasher
	argon   *Argon2id
	bcrypt  *Bcrypt
}

// NewMulti creates a Multi. primary must be one of the two hashers; the
// other only verifies.
func NewMulti(primary Hasher, other Hasher) *Multi {
	m := &Multi{primary: primary}
	for _, h := range []Hasher{primary, other} {
		switch v := h.(type) {
		case *Argon2id:
			m.argon = v
		case *Bcrypt:
			m.bcrypt = v
		}
	}
	return m
}

// Hash hashes with the primary algorithm.
func (m *Multi) Hash(ctx context.Context, plaintext string) (string, error) {
	return m.primary.Hash(ctx, plaintext)
}

// Verify picks the hasher matching the stored hash.
func (m *Multi) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	h := m.forHash(hash)
	if h == nil {
		return false, ErrUnknownAlgorithm
	}
	return h.Verify(ctx, plaintext, hash)
}

// NeedsRehash reports whether hash was produced by anything other than the
// primary algorithm with its current settings.
func (m *Multi) NeedsRehash(hash string) bool {
	h := m.forHash(hash)
	if h == nil || h != m.primary {
		return true
	}
	if r, ok := h.(Rehasher); ok {
		return r.NeedsRehash(hash)
	}
	return false
}

func (m *Multi) forHash(hash string) Hasher {
	switch {
	case strings.HasPrefix(hash, argon2idPrefix) && m.argon != nil:
		return m.argon
	case isBcrypt(hash) && m.bcrypt != nil:
		return m.bcrypt
	}
	return nil
}
