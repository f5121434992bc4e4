package storage

import "errors"

// Storage errors for the append-only registry.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Tokens are never overwritten.
	ErrDuplicateKey = errors.New("duplicate key: registry entries are never overwritten")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
