// Package kv provides the ephemeral TTL key-value store backing event
// deduplication, workflow debug records, and the global-variable mirror.
//
// Two backends exist: an in-process store over go-cache and a redis store
// that degrades to an in-process fallback while redis is unreachable.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// NoExpiration marks a key that never expires.
const NoExpiration time.Duration = 0

// Store is the key-value contract. Values are strings; callers JSON-encode
// structured payloads themselves.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores the value with a TTL. NoExpiration keeps it forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores the value only when the key is absent.
	// Returns true when the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
