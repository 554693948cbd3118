// Package store defines the session store: a small key-value persistence
// contract for the credential token and the serialized user record.
// Implementations are in store/memory, store/file, store/redis,
// store/postgres and store/mongo.
//
// A store must distinguish a key that was never written (ErrNotFound) from a
// value that exists but cannot be trusted (ErrMalformed). The inbox session
// treats the first as "no session" and the second as a corrupt record that
// must be erased.
package store

import (
	"context"
	"strings"
)

// Keys used by the inbox session.
const (
	// KeyToken holds the opaque credential token.
	KeyToken = "token"

	// KeyUser holds the JSON-serialized user record.
	KeyUser = "user"
)

// Store is the session store interface.
//
// All operations must be safe for concurrent use. Get, Set and Remove
// return ErrNotConnected before Connect and after Close.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Get returns the value stored under key.
	// Returns ErrNotFound if the key is absent and ErrMalformed if the
	// stored value is unreadable.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// ValidateKey checks that key can be used with a store.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
