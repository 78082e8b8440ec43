// Package password hashes and verifies user passwords.
//
// Argon2id is the default algorithm; bcrypt hashes remain verifiable so a
// deployment can switch algorithms without resetting every account. All
// hashing goes through a bounded Pool so a burst of logins cannot occupy
// every CPU.
package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// Hasher hashes passwords and verifies them against stored hashes.
//
// Verify returns false with a nil error on mismatch. Errors are reserved
// for cancelled contexts and stored hashes that cannot be parsed.
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) (bool, error)
}

// Rehasher is implemented by hashers that can tell when a stored hash was
// produced with outdated settings or another algorithm.
type Rehasher interface {
	NeedsRehash(hash string) bool
}

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")

	// ErrUnknownAlgorithm is returned when a stored hash uses an algorithm
	// no configured hasher understands.
	ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")

	// ErrPasswordTooLong is returned by bcrypt for inputs over 72 bytes.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// Algorithm names accepted by New.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Options selects and tunes the hasher built by New.
type Options struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
	// Workers bounds concurrent hash and verify calls. Zero means
	// runtime.NumCPU().
	Workers int
}

// New builds the service hasher: a Pool over a Multi whose primary
// algorithm is opts.Algorithm and which still verifies the other one.
func New(opts Options) (*Pool, error) {
	argon := NewArgon2id(opts.Argon2)
	bc, err := NewBcrypt(opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	var m *Multi
	switch opts.Algorithm {
	case AlgorithmArgon2id, "":
		m = NewMulti(argon, bc)
	case AlgorithmBcrypt:
		m = NewMulti(bc, argon)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, opts.Algorithm)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return NewPool(m, workers), nil
}
