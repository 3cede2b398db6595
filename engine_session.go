package cryptosync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakobS1900/cryptosync/backend"
)

// Login authenticates against the backend, persists the returned token, and
// refreshes engine state into authenticated mode. The stored token TTL comes
// from the response's expires_in, then the token's own exp claim, then the
// configured default.
func (e *Engine) Login(ctx context.Context, username, password string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := e.backend.Login(ctx, username, password)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return err
	}
	return e.adoptCredential(ctx, resp)
}

// Register creates an account and, like Login, adopts the returned credential.
func (e *Engine) Register(ctx context.Context, username, email, password string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := e.backend.Register(ctx, username, email, password)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return err
	}
	return e.adoptCredential(ctx, resp)
}

// RenewToken exchanges the stored token for a fresh one. The replacement is
// wholesale: value and expiry both come from the response. A 401 means the
// session is gone for good; the engine transitions to guest mode and returns
// [ErrAuthExpired].
func (e *Engine) RenewToken(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token, err := e.tokens.Read(ctx)
	if err != nil {
		return err
	}
	if token == nil {
		return ErrNotAuthenticated
	}

	resp, err := e.backend.RenewToken(ctx, token.Value)
	if errors.Is(err, backend.ErrUnauthorized) {
		e.forceGuest(ctx, "token renewal rejected, switched to guest mode")
		return ErrAuthExpired
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	return e.adoptCredential(ctx, resp)
}

// Logout revokes the session server-side (best effort), clears all local
// credential state, and refreshes into guest mode.
func (e *Engine) Logout(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if token, _ := e.tokens.Read(ctx); token != nil {
		// Server-side revocation failing must not keep the client logged in.
		_ = e.backend.Logout(ctx, token.Value)
	}

	if err := e.tokens.Clear(ctx); err != nil {
		return err
	}
	e.metrics.Inc(MetricLogout)
	return e.Refresh(ctx)
}

// adoptCredential stores the token from an auth response and refreshes so the
// new session is reflected in engine state before the caller continues.
func (e *Engine) adoptCredential(ctx context.Context, resp *backend.AuthResponse) error {
	if resp == nil || resp.AccessToken == "" {
		e.metrics.Inc(MetricLoginFailure)
		return ErrTokenInvalid
	}

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if err := e.tokens.Store(ctx, resp.AccessToken, ttl); err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return err
	}
	if err := e.tokens.SetLoggedIn(ctx, true); err != nil {
		return err
	}

	e.metrics.Inc(MetricLoginSuccess)
	return e.Refresh(ctx)
}
