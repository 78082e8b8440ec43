package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a user or reset token does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a user with the given email already exists.
	ErrConflict = errors.New("record already exists")
)
