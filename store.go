package cryptosync

import (
	"time"

	"github.com/JakobS1900/cryptosync/internal/kv"
)

// Store is the durable key-value surface the engine persists into. It plays
// the role the browser client gives localStorage: token, login flag, and the
// guest balance mirror all live here, and Watch is how concurrent engine
// instances observe each other's writes.
type Store = kv.Store

// StoreChange is one observed mutation on a watched [Store].
type StoreChange = kv.Change

// NewMemStore returns an in-process [Store]. Watch works between engines
// sharing the same instance; nothing survives a restart.
func NewMemStore() Store {
	return kv.NewMemStore()
}

// NewFileStore returns a [Store] backed by a single JSON file. Writes are
// atomic (temp file plus rename) and cross-process changes are picked up by
// polling the file's modification time.
func NewFileStore(path string, pollInterval time.Duration) (Store, error) {
	return kv.NewFileStore(path, pollInterval)
}
