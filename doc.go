// Package cryptosync keeps a client-side casino balance in sync with a
// CryptoChecker backend. It resolves whether the current session is a real
// account or an anonymous guest, loads the balance from the best available
// source, accepts local mutations, and reconciles everything with the server
// on a heartbeat.
//
// The package is designed for concurrent workloads: Engine methods are safe
// to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// cryptosync is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Balance, Session, SyncReport, MetricsSnapshot). The
// durable store abstraction and the event dispatcher live under internal/;
// the REST client lives in the backend sub-package.
//
// # What this package must NOT do
//
//   - Mutate the balance anywhere except through Engine methods and the store
//     watch channel. The engine is the single writer.
//   - Surface raw transport errors to readers. Balance always returns a
//     usable number; failures degrade to last-known-good or the mode's safe
//     constant.
//   - Trust a stored credential past its expiry. Tokens are checked on every
//     read and discarded, never flagged.
package cryptosync
