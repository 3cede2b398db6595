package cryptosync

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/JakobS1900/cryptosync/backend"
	"github.com/JakobS1900/cryptosync/internal/kv"
)

// Balance source names carried on events and returned by LoadInitial.
const (
	sourceLocal   = "local"
	sourceRestore = "restore"
	sourceCookie  = "cookie"
	sourceDefault = "default"
	sourceRemote  = "remote"
)

// BalanceCache resolves the initial balance for a session and mirrors the
// guest balance into the durable store.
//
// Guest resolution follows a strict priority chain (local store, server
// restore, cookie, hardcoded default) and stops at the first source that
// yields a parseable non-negative number. The chain covers three deployment
// realities: first visit (nothing local), returning visit (local mirror
// present), and cross-device restore (only the server knows).
type BalanceCache struct {
	store   kv.Store
	backend Backend
	cfg     CacheConfig
	sync    SyncConfig
	metrics *Metrics
	now     func() time.Time
}

func newBalanceCache(store kv.Store, b Backend, cfg CacheConfig, syncCfg SyncConfig, metrics *Metrics) *BalanceCache {
	return &BalanceCache{
		store:   store,
		backend: b,
		cfg:     cfg,
		sync:    syncCfg,
		metrics: metrics,
		now:     time.Now,
	}
}

// LoadInitial resolves the balance for session. In authenticated mode the
// remote ledger is the only acceptable source and its failure is returned
// to the caller (the engine decides between last-known-good and fallback).
// In guest mode the chain always produces a value; the returned source
// names the link that won, and degraded is set when the chain fell through
// to the hardcoded default with the backend unreachable.
func (c *BalanceCache) LoadInitial(ctx context.Context, session Session) (balance Balance, source string, degraded bool, err error) {
	if session.Mode == ModeAuthenticated {
		tokenValue := ""
		if session.Token != nil {
			tokenValue = session.Token.Value
		}
		data, err := c.backend.FetchBalance(ctx, tokenValue)
		if err != nil {
			return Balance{}, "", false, err
		}
		return c.resolved(ctx, session.Mode, data.Balance), sourceRemote, false, nil
	}

	if amount, ok := c.readLocal(ctx); ok {
		return c.resolved(ctx, session.Mode, amount), sourceLocal, false, nil
	}

	restoreFailed := false
	if c.cfg.EnableServerRestore {
		data, err := c.backend.SyncBalance(ctx, "", backend.SyncRestore, nil)
		if err == nil && validAmount(data.Balance) {
			return c.resolved(ctx, session.Mode, data.Balance), sourceRestore, false, nil
		}
		restoreFailed = err != nil
	}

	if c.cfg.EnableCookieFallback {
		if amount, ok := c.backend.CookieBalance(); ok {
			c.metrics.Inc(MetricCookieFallback)
			return c.resolved(ctx, session.Mode, amount), sourceCookie, false, nil
		}
	}

	fallback := c.sync.GuestDefaultBalance
	if session.Guest != nil && validAmount(session.Guest.WalletBalance) {
		fallback = session.Guest.WalletBalance
	}
	return c.resolved(ctx, session.Mode, fallback), sourceDefault, restoreFailed, nil
}

// PersistLocal mirrors amount into the durable store, best-effort. Failures
// are swallowed and counted; a disabled or corrupted store must not break
// the caller.
func (c *BalanceCache) PersistLocal(ctx context.Context, amount float64) {
	if !validAmount(amount) {
		c.metrics.Inc(MetricStoreWriteFailure)
		return
	}
	if err := c.store.Set(ctx, storageKeyDemoBalance, strconv.FormatFloat(amount, 'f', -1, 64)); err != nil {
		c.metrics.Inc(MetricStoreWriteFailure)
		return
	}
	stamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.store.Set(ctx, storageKeyBalanceStamp, stamp); err != nil {
		c.metrics.Inc(MetricStoreWriteFailure)
	}
}

// LocalStamp reports the persisted write timestamp of the local mirror.
func (c *BalanceCache) LocalStamp(ctx context.Context) (time.Time, bool) {
	raw, err := c.store.Get(ctx, storageKeyBalanceStamp)
	if err != nil {
		return time.Time{}, false
	}
	milli, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(milli), true
}

func (c *BalanceCache) readLocal(ctx context.Context) (float64, bool) {
	raw, err := c.store.Get(ctx, storageKeyDemoBalance)
	if err != nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || !validAmount(amount) {
		// Corrupted mirror: drop it so the chain repairs itself on the
		// next load instead of tripping on the same value forever.
		_ = c.store.Delete(ctx, storageKeyDemoBalance)
		return 0, false
	}
	return amount, true
}

func (c *BalanceCache) resolved(ctx context.Context, mode SessionMode, amount float64) Balance {
	if amount < 0 {
		amount = 0
	}
	if c.cfg.WriteBack && mode == ModeGuest {
		c.PersistLocal(ctx, amount)
	}
	return Balance{
		Amount:       amount,
		LastSyncedAt: c.now(),
		Mode:         mode,
	}
}

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0) && amount >= 0
}
