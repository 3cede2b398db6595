package cryptosync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakobS1900/cryptosync/backend"
	"github.com/JakobS1900/cryptosync/internal/events"
	"github.com/JakobS1900/cryptosync/internal/kv"
)

// sourceStorage marks updates folded in from another engine instance via the
// store watch channel.
const sourceStorage = "storage"

// backgroundSyncTimeout bounds the fire-and-forget server sync spawned after
// a guest balance write.
const backgroundSyncTimeout = 10 * time.Second

// refreshGate coalesces concurrent Refresh calls onto one backend round trip.
// err is written exactly once, before done is closed.
type refreshGate struct {
	done chan struct{}
	err  error
}

// Engine is the balance synchronization engine. It owns the single canonical
// balance value, reconciles it against the backend, and notifies subscribers
// and the ambient event sink of every change.
//
// Build one through [Builder.Build]. All exported methods are safe for
// concurrent use.
type Engine struct {
	config  Config
	backend Backend
	store   kv.Store
	tokens  *TokenStore
	probe   *AuthStateProbe
	cache   *BalanceCache
	events  *events.Dispatcher
	metrics *Metrics

	mu         sync.Mutex
	session    Session
	amount     float64
	lastSynced time.Time
	errorCount int
	loadedOnce bool
	inflight   *refreshGate

	subsMu  sync.Mutex
	subs    map[uint64]func(Event)
	nextSub uint64

	ownsStore   bool
	watchCancel context.CancelFunc
	done        chan struct{}
	wg          sync.WaitGroup
	closed      atomic.Bool
	closeOnce   sync.Once
	now         func() time.Time
}

// Balance returns the current balance, already passed through the safety
// gates: while the circuit breaker is open, or when internal state has been
// corrupted into a negative or non-numeric value, the mode's safe constant is
// served instead.
func (e *Engine) Balance() float64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.safeBalanceLocked()
}

func (e *Engine) safeBalanceLocked() float64 {
	safe := e.config.Sync.GuestDefaultBalance
	if e.session.Mode == ModeAuthenticated {
		safe = e.config.Sync.AuthFallbackBalance
	}
	if e.errorCount >= e.config.Sync.ErrorThreshold {
		e.metrics.Inc(MetricCircuitOpen)
		return safe
	}
	if math.IsNaN(e.amount) || math.IsInf(e.amount, 0) || e.amount < 0 {
		return safe
	}
	return e.amount
}

// BalanceInfo returns the balance together with its sync timestamp and the
// session mode it belongs to.
func (e *Engine) BalanceInfo() Balance {
	if e == nil {
		return Balance{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Balance{
		Amount:       e.safeBalanceLocked(),
		LastSyncedAt: e.lastSynced,
		Mode:         e.session.Mode,
	}
}

// Session returns a copy of the current resolved session.
func (e *Engine) Session() Session {
	if e == nil {
		return Session{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Mode returns the current session mode.
func (e *Engine) Mode() SessionMode {
	return e.Session().Mode
}

// Refresh re-resolves session and balance against the backend. Concurrent
// callers share one round trip: while a refresh is in flight every additional
// call waits for its outcome instead of starting another.
//
// A network failure in authenticated mode keeps the last known balance and
// returns an error wrapping [ErrNetworkFailure]. Guest mode never fails; the
// resolution chain bottoms out at the hardcoded default.
func (e *Engine) Refresh(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if gate := e.inflight; gate != nil {
		e.mu.Unlock()
		e.metrics.Inc(MetricRefreshDeduped)
		select {
		case <-gate.done:
			return gate.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	gate := &refreshGate{done: make(chan struct{})}
	e.inflight = gate
	e.mu.Unlock()

	gate.err = e.doRefresh(ctx)

	e.mu.Lock()
	e.inflight = nil
	e.mu.Unlock()
	close(gate.done)

	return gate.err
}

func (e *Engine) doRefresh(ctx context.Context) error {
	start := e.now()
	session := e.probe.Detect(ctx)

	if session.Mode == ModeAuthenticated {
		bal, source, _, err := e.cache.LoadInitial(ctx, session)
		switch {
		case err == nil:
			e.applyRefresh(ctx, session, bal.Amount, source, false)
		case errors.Is(err, backend.ErrUnauthorized):
			// The token the probe accepted is dead. Discard it and finish
			// the refresh in guest mode instead of failing.
			amount, src := e.forceGuest(ctx, "session expired, switched to guest mode")
			e.emitResolved(ctx, amount, src)
		default:
			e.recordFailure(ctx, err)
			return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
		}
	} else {
		bal, source, degraded, _ := e.cache.LoadInitial(ctx, session)
		e.applyRefresh(ctx, session, bal.Amount, source, degraded)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.metrics.Observe(MetricRefreshLatency, e.now().Sub(start))
	return nil
}

// applyRefresh folds a successfully resolved balance into engine state and
// emits the loaded/refreshed event. A degraded resolution (backend down,
// hardcoded default served) additionally emits one error event so the UI can
// surface the condition, while the refresh itself still counts as success.
func (e *Engine) applyRefresh(ctx context.Context, session Session, amount float64, source string, degraded bool) {
	e.mu.Lock()
	old := e.amount
	e.session = session
	e.amount = amount
	e.lastSynced = e.now()
	e.errorCount = 0
	e.mu.Unlock()

	if degraded {
		e.emit(ctx, Event{
			Type:    EventError,
			Balance: amount,
			Source:  source,
			Error:   "backend unreachable, using default balance",
		})
	}

	oldCopy := old
	e.emit(ctx, Event{
		Type:       e.resolvedType(),
		Balance:    amount,
		OldBalance: &oldCopy,
		Source:     source,
	})
}

// emitResolved emits the loaded/refreshed event for state already applied by
// forceGuest.
func (e *Engine) emitResolved(ctx context.Context, amount float64, source string) {
	e.emit(ctx, Event{
		Type:    e.resolvedType(),
		Balance: amount,
		Source:  source,
	})
}

// resolvedType returns loaded for the first resolution, refreshed afterwards,
// flipping the latch as a side effect.
func (e *Engine) resolvedType() EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loadedOnce {
		e.loadedOnce = true
		return EventLoaded
	}
	return EventRefreshed
}

// recordFailure counts a refresh failure toward the circuit breaker and emits
// a single error event. The balance is left untouched; readers keep seeing
// the last known good value until the threshold trips.
func (e *Engine) recordFailure(ctx context.Context, cause error) {
	e.metrics.Inc(MetricRefreshFailure)

	e.mu.Lock()
	e.errorCount++
	tripped := e.errorCount == e.config.Sync.ErrorThreshold
	balance := e.amount
	e.mu.Unlock()

	message := cause.Error()
	if tripped {
		message += " (error threshold crossed, serving fallback balance)"
	}
	e.emit(ctx, Event{
		Type:    EventError,
		Balance: balance,
		Error:   message,
	})
}

// forceGuest discards the stored credential and re-resolves in guest mode.
// Returns the resolved amount and its source. Callers decide which resolved
// event, if any, follows the error advisory emitted here.
func (e *Engine) forceGuest(ctx context.Context, reason string) (float64, string) {
	e.metrics.Inc(MetricAuthExpired)
	_ = e.tokens.Clear(ctx)

	session := e.probe.GuestSession(ctx)
	bal, source, _, _ := e.cache.LoadInitial(ctx, session)

	e.mu.Lock()
	old := e.amount
	e.session = session
	e.amount = bal.Amount
	e.lastSynced = e.now()
	e.errorCount = 0
	e.mu.Unlock()

	oldCopy := old
	e.emit(ctx, Event{
		Type:       EventError,
		Balance:    bal.Amount,
		OldBalance: &oldCopy,
		Source:     source,
		Error:      reason,
	})
	return bal.Amount, source
}

// UpdateBalance applies a local balance mutation. The returned bool reports
// whether the new value was accepted; a false with nil error means the update
// was refused without breaking anything (no credential, server rejection).
//
// Negative, NaN or infinite amounts are clamped to zero and counted, never
// propagated. An amount equal to the current balance refreshes the sync
// timestamp and returns true without emitting an update event.
func (e *Engine) UpdateBalance(ctx context.Context, amount float64, source string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if e.closed.Load() {
		return false, ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if source == "" {
		source = "api"
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		e.metrics.Inc(MetricUpdateClamped)
		e.emit(ctx, Event{
			Type:    EventError,
			Balance: 0,
			Source:  source,
			Error:   fmt.Sprintf("anomalous balance %v clamped to 0", amount),
		})
		amount = 0
	}

	e.mu.Lock()
	session := e.session
	if amount == e.amount {
		e.lastSynced = e.now()
		e.mu.Unlock()
		e.metrics.Inc(MetricUpdateNoop)
		return true, nil
	}
	e.mu.Unlock()

	if session.Mode == ModeAuthenticated {
		if !session.Token.Valid(e.now()) {
			e.metrics.Inc(MetricUpdateRejected)
			return false, nil
		}
		if err := e.backend.PushBalance(ctx, session.Token.Value, amount); err != nil {
			if errors.Is(err, backend.ErrUnauthorized) {
				e.forceGuest(ctx, "session expired, balance update not applied")
				e.metrics.Inc(MetricUpdateRejected)
				return false, nil
			}
			e.metrics.Inc(MetricUpdateRejected)
			e.recordFailure(ctx, err)
			return false, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
		}
		e.applyUpdate(ctx, amount, source)
		return true, nil
	}

	// Guest: fold into engine state before the store write, so the watch
	// channel's echo of our own persist is recognized as already applied.
	e.applyUpdate(ctx, amount, source)
	e.cache.PersistLocal(ctx, amount)
	e.backgroundSync(amount)
	return true, nil
}

func (e *Engine) applyUpdate(ctx context.Context, amount float64, source string) {
	e.mu.Lock()
	old := e.amount
	e.amount = amount
	e.lastSynced = e.now()
	e.mu.Unlock()

	e.metrics.Inc(MetricUpdateApplied)
	oldCopy := old
	e.emit(ctx, Event{
		Type:       EventUpdated,
		Balance:    amount,
		OldBalance: &oldCopy,
		Source:     source,
	})
}

// backgroundSync pushes a guest balance to the server without blocking the
// caller. Failures are irrelevant here; the authoritative copy for guests is
// the local one and the next auto-save retries anyway.
func (e *Engine) backgroundSync(amount float64) {
	if e.closed.Load() {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
		defer cancel()
		fb := amount
		_, _ = e.backend.SyncBalance(ctx, "", backend.SyncSave, &fb)
	}()
}

/*
====================================
BACKGROUND LOOPS
====================================
*/

func (e *Engine) heartbeatLoop(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.metrics.Inc(MetricHeartbeatTick)
			_ = e.Refresh(context.Background())
		case <-e.done:
			return
		}
	}
}

func (e *Engine) autoSaveLoop(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.metrics.Inc(MetricAutoSaveTick)
			e.autoSaveOnce()
		case <-e.done:
			return
		}
	}
}

// autoSaveOnce persists the current guest balance and mirrors it to the
// server. Authenticated mode needs no auto-save: every applied update already
// went through the backend.
func (e *Engine) autoSaveOnce() {
	e.mu.Lock()
	mode := e.session.Mode
	amount := e.amount
	e.mu.Unlock()

	if mode != ModeGuest || !validAmount(amount) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
	defer cancel()
	e.cache.PersistLocal(ctx, amount)
	fb := amount
	_, _ = e.backend.SyncBalance(ctx, "", backend.SyncSave, &fb)
}

// watchLoop folds balance writes from other engine instances into local
// state. Only guest-mode demo balance changes qualify, and only when they are
// newer than our last sync; everything else on the channel is ignored.
func (e *Engine) watchLoop(ch <-chan kv.Change) {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			e.applyWatch(change)
		}
	}
}

func (e *Engine) applyWatch(change kv.Change) {
	if change.Key != storageKeyDemoBalance || change.Deleted {
		return
	}
	amount, err := strconv.ParseFloat(change.Value, 64)
	if err != nil || !validAmount(amount) {
		return
	}

	e.mu.Lock()
	if e.session.Mode != ModeGuest || amount == e.amount || !change.At.After(e.lastSynced) {
		e.mu.Unlock()
		return
	}
	old := e.amount
	e.amount = amount
	e.lastSynced = change.At
	e.mu.Unlock()

	e.metrics.Inc(MetricCrossTabApplied)
	oldCopy := old
	e.emit(context.Background(), Event{
		Type:       EventUpdated,
		Balance:    amount,
		OldBalance: &oldCopy,
		Source:     sourceStorage,
	})
}

/*
====================================
LIFECYCLE
====================================
*/

// Close stops the background loops, drains the event dispatcher, and closes
// the store if the engine owns it. Idempotent; methods called after Close
// return [ErrEngineClosed].
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		if e.watchCancel != nil {
			e.watchCancel()
		}
		e.wg.Wait()
		e.events.Close()
		if e.ownsStore {
			_ = e.store.Close()
		}
	})
}

// EventsDropped reports how many events the ambient dispatcher discarded
// because its buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the engine's metrics instance for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}
