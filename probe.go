package cryptosync

import (
	"context"

	"github.com/google/uuid"

	"github.com/JakobS1900/cryptosync/backend"
)

// AuthStateProbe resolves the session mode for an engine instance. Detect
// never returns an error: every failure path degrades toward guest mode,
// ending at a hardcoded identity, so the caller always has a usable session.
type AuthStateProbe struct {
	backend Backend
	tokens  *TokenStore
	cfg     SyncConfig
	metrics *Metrics
}

func newAuthStateProbe(b Backend, tokens *TokenStore, cfg SyncConfig, metrics *Metrics) *AuthStateProbe {
	return &AuthStateProbe{
		backend: b,
		tokens:  tokens,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Detect resolves the current session. Order of authority: the backend's
// status endpoint; if unreachable, the cached token plus login flag as a
// heuristic; otherwise guest mode via [AuthStateProbe.GuestSession].
func (p *AuthStateProbe) Detect(ctx context.Context) Session {
	token, _ := p.tokens.Read(ctx)

	tokenValue := ""
	if token != nil {
		tokenValue = token.Value
	}

	status, err := p.backend.Status(ctx, tokenValue)
	if err == nil {
		if status.Authenticated {
			return Session{
				Mode:  ModeAuthenticated,
				User:  status.User,
				Token: token,
			}
		}
		// The backend says we are not logged in; whatever we cached is
		// stale and must go.
		_ = p.tokens.Clear(ctx)
		if status.GuestUser != nil {
			p.metrics.Inc(MetricGuestDefaultServed)
			return Session{Mode: ModeGuest, Guest: status.GuestUser}
		}
		return p.GuestSession(ctx)
	}

	// Status endpoint unreachable: fall back to local evidence. A valid
	// cached token plus the login flag is taken as authenticated so the UI
	// keeps showing the account; the next successful probe corrects it.
	p.metrics.Inc(MetricProbeOffline)
	if token != nil && p.tokens.LoggedIn(ctx) {
		return Session{
			Mode:    ModeAuthenticated,
			Token:   token,
			Assumed: true,
		}
	}

	return p.GuestSession(ctx)
}

// GuestSession builds a guest session: server-provided defaults when the
// guest endpoint answers, the hardcoded fallback identity otherwise.
func (p *AuthStateProbe) GuestSession(ctx context.Context) Session {
	if guest, err := p.backend.Guest(ctx); err == nil && guest != nil {
		p.metrics.Inc(MetricGuestDefaultServed)
		return Session{Mode: ModeGuest, Guest: guest}
	}

	p.metrics.Inc(MetricGuestHardcoded)
	return Session{
		Mode: ModeGuest,
		Guest: &backend.GuestUser{
			ID:            "guest-" + uuid.NewString(),
			Username:      p.cfg.GuestUsername,
			WalletBalance: p.cfg.GuestDefaultBalance,
		},
	}
}
