package cryptosync

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEngineClosed is returned by operations issued after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrNetworkFailure wraps transport-level failures reaching the backend.
	ErrNetworkFailure = errors.New("backend unreachable")
	// ErrAuthExpired marks a 401 on an authenticated call; the engine reacts
	// by discarding the credential and falling back to guest mode.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrNotAuthenticated is returned by credential operations that require
	// an authenticated session.
	ErrNotAuthenticated = errors.New("no authenticated session")
	// ErrInvalidLocalState marks a corrupted cached balance (non-numeric or
	// negative); it is recovered locally and only surfaced through events.
	ErrInvalidLocalState = errors.New("invalid local balance state")
	// ErrStoreRequired is returned by Build when no durable store was
	// supplied.
	ErrStoreRequired = errors.New("durable store required")
	// ErrBackendRequired is returned by Build when neither a Backend nor a
	// base URL was supplied.
	ErrBackendRequired = errors.New("backend required")
	// ErrTokenInvalid is returned when a stored credential cannot be parsed.
	ErrTokenInvalid = errors.New("invalid token")
)
