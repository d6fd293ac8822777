// Package store persists named JSON blobs for the sync containers and
// tells each store instance about writes made by the others.
//
// Every crewsync process of a profile opens the same SQLite file. A write
// is tagged with the writer's instance ID and a store-wide revision, so a
// watcher can hand other instances' writes to subscribers and skip its own.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Blobs.Get when the key has never been written.
var ErrNotFound = errors.New("blob not found")

// Change is a write observed by a watcher.
type Change struct {
	Key      string `db:"key"`
	Value    []byte `db:"value"`
	Writer   string `db:"writer"`
	Revision int64  `db:"revision"`
}

// Blobs is the raw key/value layer under the typed Persistent adapter.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Subscribe registers fn for writes to key made by other instances.
	// The returned function removes the subscription.
	Subscribe(key string, fn func(Change)) func()
}
