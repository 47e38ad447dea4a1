package ephemeral

import "errors"

var (
	// ErrNotFound is returned when a key is missing or its TTL has elapsed.
	ErrNotFound = errors.New("ephemeral: key not found")

	// ErrInvalidInput is returned for empty keys or non-positive TTLs.
	ErrInvalidInput = errors.New("ephemeral: invalid input")
)
