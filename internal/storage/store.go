// Package storage persists the note list under a single key of a local key/value store.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound indicates that a key has no stored value.
var ErrKeyNotFound = errors.New("storage: key not found")

// KeyValueStore is the minimal string key/value contract the adapter needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
