// Package kvstore is the keyed record store behind the cursor, inbox and
// connection repositories. Values are opaque bytes (JSON in practice).
package kvstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("kvstore: key not found")

// UpdateFunc receives the current value (nil when the key is absent) and
// returns the replacement. Returning a nil slice deletes the key.
type UpdateFunc func(current []byte) ([]byte, error)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update performs a read-modify-write that is serialized per key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}
