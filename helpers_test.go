package cryptosync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakobS1900/cryptosync/backend"
)

var errUnreachable = errors.New("dial tcp: connection refused")

// mockBackend implements Backend with overridable function fields. Every
// unset endpoint answers as unreachable, which is the degraded baseline most
// tests start from.
type mockBackend struct {
	statusFn   func(ctx context.Context, token string) (*backend.StatusResponse, error)
	guestFn    func(ctx context.Context) (*backend.GuestUser, error)
	loginFn    func(ctx context.Context, username, password string) (*backend.AuthResponse, error)
	registerFn func(ctx context.Context, username, email, password string) (*backend.AuthResponse, error)
	renewFn    func(ctx context.Context, token string) (*backend.AuthResponse, error)
	logoutFn   func(ctx context.Context, token string) error
	fetchFn    func(ctx context.Context, token string) (*backend.BalanceData, error)
	pushFn     func(ctx context.Context, token string, balance float64) error
	syncFn     func(ctx context.Context, token string, action backend.SyncAction, frontendBalance *float64) (*backend.BalanceData, error)
	cookieFn   func() (float64, bool)
}

func (m *mockBackend) Status(ctx context.Context, token string) (*backend.StatusResponse, error) {
	if m.statusFn == nil {
		return nil, errUnreachable
	}
	return m.statusFn(ctx, token)
}

func (m *mockBackend) Guest(ctx context.Context) (*backend.GuestUser, error) {
	if m.guestFn == nil {
		return nil, errUnreachable
	}
	return m.guestFn(ctx)
}

func (m *mockBackend) Login(ctx context.Context, username, password string) (*backend.AuthResponse, error) {
	if m.loginFn == nil {
		return nil, errUnreachable
	}
	return m.loginFn(ctx, username, password)
}

func (m *mockBackend) Register(ctx context.Context, username, email, password string) (*backend.AuthResponse, error) {
	if m.registerFn == nil {
		return nil, errUnreachable
	}
	return m.registerFn(ctx, username, email, password)
}

func (m *mockBackend) RenewToken(ctx context.Context, token string) (*backend.AuthResponse, error) {
	if m.renewFn == nil {
		return nil, errUnreachable
	}
	return m.renewFn(ctx, token)
}

func (m *mockBackend) Logout(ctx context.Context, token string) error {
	if m.logoutFn == nil {
		return errUnreachable
	}
	return m.logoutFn(ctx, token)
}

func (m *mockBackend) FetchBalance(ctx context.Context, token string) (*backend.BalanceData, error) {
	if m.fetchFn == nil {
		return nil, errUnreachable
	}
	return m.fetchFn(ctx, token)
}

func (m *mockBackend) PushBalance(ctx context.Context, token string, balance float64) error {
	if m.pushFn == nil {
		return errUnreachable
	}
	return m.pushFn(ctx, token, balance)
}

func (m *mockBackend) SyncBalance(ctx context.Context, token string, action backend.SyncAction, frontendBalance *float64) (*backend.BalanceData, error) {
	if m.syncFn == nil {
		return nil, errUnreachable
	}
	return m.syncFn(ctx, token, action, frontendBalance)
}

func (m *mockBackend) CookieBalance() (float64, bool) {
	if m.cookieFn == nil {
		return 0, false
	}
	return m.cookieFn()
}

// authenticatedBackend answers as a logged-in user with the given remote
// balance.
func authenticatedBackend(balance float64) *mockBackend {
	return &mockBackend{
		statusFn: func(_ context.Context, token string) (*backend.StatusResponse, error) {
			return &backend.StatusResponse{
				Authenticated: true,
				User:          &backend.User{ID: "u1", Username: "alice", WalletBalance: balance},
			}, nil
		},
		fetchFn: func(_ context.Context, _ string) (*backend.BalanceData, error) {
			return &backend.BalanceData{Balance: balance}, nil
		},
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Sync.HeartbeatInterval = 0
	cfg.Sync.AutoSaveInterval = 0
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, mb Backend, store Store) *Engine {
	t.Helper()
	return newTestEngineWithConfig(t, mb, store, testConfig())
}

func newTestEngineWithConfig(t *testing.T, mb Backend, store Store, cfg Config) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(cfg).
		WithBackend(mb).
		WithStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// seedToken stores a live credential plus the login flag the offline
// heuristic checks.
func seedToken(t *testing.T, engine *Engine, value string, ttl time.Duration) {
	t.Helper()
	ctx := context.Background()
	if err := engine.tokens.Store(ctx, value, ttl); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := engine.tokens.SetLoggedIn(ctx, true); err != nil {
		t.Fatalf("seed login flag: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
