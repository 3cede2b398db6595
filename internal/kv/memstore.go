package kv

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process [Store]. Every Set/Delete is broadcast to all
// watchers, including watchers registered on the same instance; callers that
// need browser storage-event semantics (no self-notification) filter by
// comparing against their own last write.
type MemStore struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[int]chan Change
	nextID   int
	closed   bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data:     make(map[string]string),
		watchers: make(map[int]chan Change),
	}
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements [Store].
func (s *MemStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	s.broadcastLocked(Change{Key: key, Value: value, At: time.Now()})
	return nil
}

// Delete implements [Store]. Deleting an absent key is a no-op.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	s.broadcastLocked(Change{Key: key, Deleted: true, At: time.Now()})
	return nil
}

// Watch implements [Store].
func (s *MemStore) Watch(ctx context.Context) (<-chan Change, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Change, watchBuffer)
	s.watchers[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

// Close implements [Store]. All watcher channels are closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w)
	}
	return nil
}

func (s *MemStore) broadcastLocked(change Change) {
	for _, w := range s.watchers {
		select {
		case w <- change:
		default:
		}
	}
}
