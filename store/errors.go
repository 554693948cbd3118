package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a key has never been written or was removed.
	ErrNotFound = errors.New("store: not found")

	// ErrMalformed is returned when a stored value exists but cannot be read back.
	ErrMalformed = errors.New("store: malformed record")

	// ErrInvalidKey is returned when an empty key is provided.
	ErrInvalidKey = errors.New("store: invalid key")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
