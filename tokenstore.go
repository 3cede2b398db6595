package cryptosync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JakobS1900/cryptosync/internal/kv"
)

// Persisted key names. These mirror the browser client's localStorage keys
// and must not change while deployments with existing state are live.
const (
	storageKeyAuthToken       = "auth_token"
	storageKeyAuthTokenExpiry = "auth_token_expiry"
	storageKeyLoginFlag       = "is_logged_in"
	storageKeyDemoBalance     = "demo_balance"
	storageKeyBalanceStamp    = "demo_balance_timestamp"
)

// TokenStore owns credential persistence. Expiry is enforced on read: a
// token found past its expiry is deleted and reported as absent, so no
// caller ever acts on a stale credential and no separate cleanup sweep is
// needed.
type TokenStore struct {
	store   kv.Store
	cfg     TokenConfig
	metrics *Metrics
	now     func() time.Time
}

func newTokenStore(store kv.Store, cfg TokenConfig, metrics *Metrics) *TokenStore {
	return &TokenStore{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

// Store persists the token with an absolute expiry computed from ttl. When
// ttl is zero it falls back to the token's exp claim (unverified parse; the
// backend is the verifier, this client only schedules renewal), then to the
// configured default.
func (s *TokenStore) Store(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return ErrTokenInvalid
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	if ttl <= 0 {
		if claimExp, ok := tokenExpiry(token); ok && claimExp.After(now) {
			expiresAt = claimExp
		} else {
			expiresAt = now.Add(s.cfg.DefaultTTL)
		}
	}

	if err := s.store.Set(ctx, storageKeyAuthToken, token); err != nil {
		return err
	}
	return s.store.Set(ctx, storageKeyAuthTokenExpiry, strconv.FormatInt(expiresAt.UnixMilli(), 10))
}

// Read returns the stored token, or nil when none is stored or the stored
// one has expired. Expired or unparseable state is cleared as a side effect.
func (s *TokenStore) Read(ctx context.Context) (*Token, error) {
	value, err := s.store.Get(ctx, storageKeyAuthToken)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rawExpiry, err := s.store.Get(ctx, storageKeyAuthTokenExpiry)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	expiryMilli, parseErr := strconv.ParseInt(rawExpiry, 10, 64)
	if errors.Is(err, kv.ErrNotFound) || parseErr != nil {
		// Token without usable expiry metadata is treated as expired.
		s.metrics.Inc(MetricTokenExpired)
		return nil, s.Clear(ctx)
	}

	expiresAt := time.UnixMilli(expiryMilli)
	if !s.now().Add(s.cfg.ClockSkew).Before(expiresAt) {
		s.metrics.Inc(MetricTokenExpired)
		return nil, s.Clear(ctx)
	}

	return &Token{
		Value:     value,
		ExpiresAt: expiresAt,
	}, nil
}

// Clear removes the token, its expiry metadata, and the login flag. It is
// idempotent and succeeds when nothing is stored.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, storageKeyAuthToken); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, storageKeyAuthTokenExpiry); err != nil {
		return err
	}
	return s.store.Delete(ctx, storageKeyLoginFlag)
}

// SetLoggedIn persists the heuristic login flag consulted when the status
// endpoint is unreachable.
func (s *TokenStore) SetLoggedIn(ctx context.Context, loggedIn bool) error {
	if !loggedIn {
		return s.store.Delete(ctx, storageKeyLoginFlag)
	}
	return s.store.Set(ctx, storageKeyLoginFlag, "1")
}

// LoggedIn reports the persisted login flag. Storage failures read as false.
func (s *TokenStore) LoggedIn(ctx context.Context) bool {
	v, err := s.store.Get(ctx, storageKeyLoginFlag)
	return err == nil && v == "1"
}

// tokenExpiry extracts the exp claim without verifying the signature. The
// client holds no verification key; expiry here only schedules renewal and
// the backend re-checks every call.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
