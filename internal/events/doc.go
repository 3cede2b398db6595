// Package events carries balance-change notifications from the sync engine
// to the ambient event channel.
//
// The engine delivers every event twice: synchronously to its registered
// subscribers (with per-callback panic isolation), and asynchronously through
// the [Dispatcher] in this package to a configured [Sink]. The dispatcher is
// buffered; under backpressure it either blocks on the caller's context or
// drops and counts, depending on configuration.
//
// # What this package must NOT do
//
//   - Import cryptosync or any sibling package.
//   - Mutate balance state; events are a read-only record of what the
//     engine already decided.
package events
