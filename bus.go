package cryptosync

import (
	"context"
	"sort"
)

// Subscription is a handle returned by [Engine.Subscribe]. Unsubscribe
// detaches the callback; it is safe to call more than once and on nil.
type Subscription struct {
	id     uint64
	engine *Engine
}

// Unsubscribe removes the subscription's callback from the engine.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.engine == nil {
		return
	}
	s.engine.unsubscribe(s.id)
	s.engine = nil
}

// Subscribe registers fn for synchronous delivery of every engine event.
// Callbacks run on the goroutine that produced the event, in registration
// order. A panicking callback is contained and never prevents delivery to
// the remaining subscribers.
//
// Long-running work belongs behind an [EventSink] on the async dispatcher,
// not in a subscriber callback.
func (e *Engine) Subscribe(fn func(Event)) *Subscription {
	if e == nil || fn == nil {
		return nil
	}

	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	return &Subscription{id: id, engine: e}
}

func (e *Engine) unsubscribe(id uint64) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	delete(e.subs, id)
}

// emit stamps the event and fans it out: synchronously to subscribers in
// registration order, then asynchronously to the ambient dispatcher. Must be
// called without e.mu held.
func (e *Engine) emit(ctx context.Context, event Event) {
	event.Timestamp = e.now()
	if event.Mode == "" {
		event.Mode = e.Mode().String()
	}
	if event.TabID == "" {
		event.TabID = tabIDFromContext(ctx)
	}

	for _, fn := range e.subscribersSnapshot() {
		notify(fn, event)
	}

	e.events.Emit(ctx, event)
}

// subscribersSnapshot copies the callback list under lock so delivery happens
// outside it and callbacks may themselves subscribe or unsubscribe.
func (e *Engine) subscribersSnapshot() []func(Event) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	if len(e.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	return fns
}

// notify runs one subscriber callback with panic containment.
func notify(fn func(Event), event Event) {
	defer func() {
		_ = recover()
	}()
	fn(event)
}
