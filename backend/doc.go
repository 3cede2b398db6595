// Package backend is the HTTP client for the CryptoChecker REST surface.
// Paths and verbs match the server exactly; the balance routes live under
// /api/gaming/roulette/ for historical reasons and must stay there.
//
// # Error taxonomy
//
// Transport failures and 5xx responses wrap [ErrUnavailable]; a 401 on any
// authenticated call maps to [ErrUnauthorized]; other non-2xx responses wrap
// [ErrUnexpectedStatus]. Callers classify with errors.Is and never inspect
// status codes directly.
//
// # What this package must NOT do
//
//   - Hold balance or session state; it is a stateless request layer (the
//     cookie jar is the one exception, kept because the server mirrors the
//     demo balance into a cookie).
//   - Import cryptosync (the root package defines its Backend interface in
//     terms of this package, not the other way around).
//   - Retry; retry and fallback policy belong to the engine.
package backend
