package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by [Store.Get] when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// ErrWatchUnsupported is returned by [Store.Watch] when the implementation
// cannot observe external changes.
var ErrWatchUnsupported = errors.New("kv: watch unsupported")

// Change describes a single externally observed mutation.
type Change struct {
	Key     string
	Value   string
	Deleted bool
	At      time.Time
}

// Store is the durable string key/value contract used by the engine.
//
// Get returns [ErrNotFound] for absent keys. Watch returns a channel that
// carries changes made by other writers of the same underlying storage; the
// channel is closed when ctx is cancelled or the store is closed.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context) (<-chan Change, error)
	Close() error
}

const watchBuffer = 16
