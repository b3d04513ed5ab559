package identity

import "errors"

var (
	// ErrNotFound is returned when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")

	// ErrExists is returned when a normalized username or email is taken.
	ErrExists = errors.New("user already exists")
)
