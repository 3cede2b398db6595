// Package kv provides the durable key/value store behind cryptosync's local
// balance mirror and credential bookkeeping. It is the Go analogue of the
// browser's localStorage, including change notifications in place of
// storage events.
//
// # Implementations
//
//   - MemStore: in-process map, for tests and ephemeral sessions
//   - FileStore: single JSON file with atomic rename writes and a polling
//     watcher for changes made by other processes
//   - RedisStore: go-redis backed, with pub/sub change fan-out across
//     engine instances ("tabs")
//
// # Architecture boundaries
//
// This package owns persistence and change notification only. It has no
// knowledge of balances, tokens, or sessions; key names are chosen by the
// caller.
//
// # What this package must NOT do
//
//   - Import cryptosync or any sibling package.
//   - Interpret stored values (everything is an opaque string).
//   - Block a writer on a slow watcher (notifications are best-effort and
//     dropped when a watcher's buffer is full).
package kv
