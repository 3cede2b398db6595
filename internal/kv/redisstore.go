package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errRedisStoreClosed = errors.New("kv: redis store closed")

type redisChange struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	At      int64  `json:"at"`
}

// RedisStore keeps values under prefix:key and publishes every mutation on
// prefix:changes. Each instance carries a random origin ID and filters its
// own publications out of Watch, so only changes from other instances
// ("other tabs") are delivered.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	origin string

	mu       sync.Mutex
	watchers map[int]chan Change
	nextID   int
	closed   bool
	done     chan struct{}
	subOnce  sync.Once
}

// NewRedisStore wraps client with the given key prefix. An empty prefix
// defaults to "cs".
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("kv: redis client required")
	}
	if prefix == "" {
		prefix = "cs"
	}

	return &RedisStore{
		client:   client,
		prefix:   prefix,
		origin:   uuid.NewString(),
		watchers: make(map[int]chan Change),
		done:     make(chan struct{}),
	}, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) channel() string {
	return s.prefix + ":changes"
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv: redis get %s: %w", key, err)
	}
	return v, nil
}

// Set implements [Store].
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("kv: redis set %s: %w", key, err)
	}
	s.publish(ctx, redisChange{Origin: s.origin, Key: key, Value: value, At: time.Now().UnixMilli()})
	return nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("kv: redis del %s: %w", key, err)
	}
	s.publish(ctx, redisChange{Origin: s.origin, Key: key, Deleted: true, At: time.Now().UnixMilli()})
	return nil
}

// Watch implements [Store]. The first Watch call starts a single pub/sub
// receive loop shared by all watchers of this instance.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Change, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errRedisStoreClosed
	}
	id := s.nextID
	s.nextID++
	ch := make(chan Change, watchBuffer)
	s.watchers[id] = ch
	s.mu.Unlock()

	s.subOnce.Do(func() {
		sub := s.client.Subscribe(context.Background(), s.channel())
		go s.receiveLoop(sub)
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

// Close implements [Store]. The caller retains ownership of the underlying
// redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w)
	}
	return nil
}

func (s *RedisStore) publish(ctx context.Context, change redisChange) {
	data, err := json.Marshal(change)
	if err != nil {
		return
	}
	// Notification is best-effort; a failed publish degrades cross-instance
	// propagation, not the write itself.
	_ = s.client.Publish(ctx, s.channel(), data).Err()
}

func (s *RedisStore) receiveLoop(sub *redis.PubSub) {
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var change redisChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				continue
			}
			if change.Origin == s.origin {
				continue
			}
			s.broadcast(Change{
				Key:     change.Key,
				Value:   change.Value,
				Deleted: change.Deleted,
				At:      time.UnixMilli(change.At),
			})
		}
	}
}

func (s *RedisStore) broadcast(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers {
		select {
		case w <- change:
		default:
		}
	}
}
