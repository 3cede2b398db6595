package cryptosync

import (
	"context"
	"errors"
	"testing"

	"github.com/JakobS1900/cryptosync/backend"
	"github.com/JakobS1900/cryptosync/internal/kv"
)

func newTestCache(t *testing.T, mb Backend, store kv.Store) *BalanceCache {
	t.Helper()
	cfg := defaultConfig()
	return newBalanceCache(store, mb, cfg.Cache, cfg.Sync, NewMetrics(MetricsConfig{Enabled: true}))
}

func guestSession() Session {
	return Session{Mode: ModeGuest, Guest: &backend.GuestUser{ID: "g1", Username: "guest_player", WalletBalance: 5000}}
}

func TestGuestChainPrefersLocal(t *testing.T) {
	store := kv.NewMemStore()
	ctx := context.Background()
	if err := store.Set(ctx, storageKeyDemoBalance, "812.5"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := newTestCache(t, &mockBackend{}, store)
	balance, source, degraded, err := cache.LoadInitial(ctx, guestSession())
	if err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}
	if balance.Amount != 812.5 || source != sourceLocal || degraded {
		t.Fatalf("got (%v, %s, %v), want (812.5, local, false)", balance.Amount, source, degraded)
	}
}

func TestGuestChainFallsToServerRestore(t *testing.T) {
	mb := &mockBackend{
		syncFn: func(_ context.Context, _ string, action backend.SyncAction, _ *float64) (*backend.BalanceData, error) {
			if action != backend.SyncRestore {
				t.Fatalf("expected restore action, got %s", action)
			}
			return &backend.BalanceData{Balance: 640, IsDemoMode: true}, nil
		},
	}
	store := kv.NewMemStore()
	cache := newTestCache(t, mb, store)

	ctx := context.Background()
	balance, source, degraded, err := cache.LoadInitial(ctx, guestSession())
	if err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}
	if balance.Amount != 640 || source != sourceRestore || degraded {
		t.Fatalf("got (%v, %s, %v), want (640, restore, false)", balance.Amount, source, degraded)
	}

	// Write-back mirrors the restored value locally.
	if raw, err := store.Get(ctx, storageKeyDemoBalance); err != nil || raw != "640" {
		t.Fatalf("expected mirror 640, got (%q, %v)", raw, err)
	}
}

func TestGuestChainFallsToCookie(t *testing.T) {
	mb := &mockBackend{
		cookieFn: func() (float64, bool) { return 133.7, true },
	}
	cache := newTestCache(t, mb, kv.NewMemStore())

	balance, source, degraded, err := cache.LoadInitial(context.Background(), guestSession())
	if err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}
	if balance.Amount != 133.7 || source != sourceCookie || degraded {
		t.Fatalf("got (%v, %s, %v), want (133.7, cookie, false)", balance.Amount, source, degraded)
	}
}

func TestGuestChainBottomsOutDegraded(t *testing.T) {
	cache := newTestCache(t, &mockBackend{}, kv.NewMemStore())

	balance, source, degraded, err := cache.LoadInitial(context.Background(), guestSession())
	if err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}
	if balance.Amount != 5000 || source != sourceDefault || !degraded {
		t.Fatalf("got (%v, %s, %v), want (5000, default, true)", balance.Amount, source, degraded)
	}
}

func TestGuestChainDropsCorruptLocalMirror(t *testing.T) {
	store := kv.NewMemStore()
	ctx := context.Background()
	if err := store.Set(ctx, storageKeyDemoBalance, "not-a-number"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := newTestCache(t, &mockBackend{}, store)
	balance, source, _, err := cache.LoadInitial(ctx, guestSession())
	if err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}
	if source == sourceLocal {
		t.Fatal("corrupt mirror must not win the chain")
	}
	if balance.Amount != 5000 {
		t.Fatalf("expected default 5000, got %v", balance.Amount)
	}
}

func TestAuthenticatedLoadsRemoteOnly(t *testing.T) {
	store := kv.NewMemStore()
	ctx := context.Background()
	if err := store.Set(ctx, storageKeyDemoBalance, "99999"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := newTestCache(t, authenticatedBackend(210), store)
	session := Session{Mode: ModeAuthenticated, Token: &Token{Value: "tok-1"}}
	balance, source, degraded, err := cache.LoadInitial(ctx, session)
	if err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}
	if balance.Amount != 210 || source != sourceRemote || degraded {
		t.Fatalf("got (%v, %s, %v), want (210, remote, false)", balance.Amount, source, degraded)
	}
}

func TestAuthenticatedErrorPropagates(t *testing.T) {
	cache := newTestCache(t, &mockBackend{}, kv.NewMemStore())

	session := Session{Mode: ModeAuthenticated, Token: &Token{Value: "tok-1"}}
	_, _, _, err := cache.LoadInitial(context.Background(), session)
	if !errors.Is(err, errUnreachable) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}
}

func TestPersistLocalWritesValueAndStamp(t *testing.T) {
	store := kv.NewMemStore()
	cache := newTestCache(t, &mockBackend{}, store)
	ctx := context.Background()

	cache.PersistLocal(ctx, 431)

	if raw, err := store.Get(ctx, storageKeyDemoBalance); err != nil || raw != "431" {
		t.Fatalf("mirror = (%q, %v), want 431", raw, err)
	}
	if _, ok := cache.LocalStamp(ctx); !ok {
		t.Fatal("expected a readable stamp after persist")
	}
}

func TestPersistLocalRefusesAnomalousValue(t *testing.T) {
	store := kv.NewMemStore()
	cache := newTestCache(t, &mockBackend{}, store)
	ctx := context.Background()

	cache.PersistLocal(ctx, -10)

	if _, err := store.Get(ctx, storageKeyDemoBalance); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected nothing persisted, got err %v", err)
	}
	if cache.metrics.Value(MetricStoreWriteFailure) != 1 {
		t.Fatal("expected a counted write failure")
	}
}
