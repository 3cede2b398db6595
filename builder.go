package cryptosync

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakobS1900/cryptosync/backend"
	"github.com/JakobS1900/cryptosync/internal/events"
	"github.com/JakobS1900/cryptosync/internal/kv"
)

// redisKeyPrefix namespaces engine state in a shared Redis deployment.
const redisKeyPrefix = "cryptosync"

// Builder assembles an [Engine]. Configure it with the With* methods and call
// Build once; a Builder is single-use and not safe for concurrent use.
type Builder struct {
	config  Config
	backend Backend
	store   Store
	redis   redis.UniversalClient
	sink    EventSink

	built bool
}

// New returns a Builder loaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets the backend base URL, keeping the rest of the config.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.Backend.BaseURL = baseURL
	return b
}

// WithBackend injects a Backend implementation, bypassing the internally
// constructed [backend.Client].
func (b *Builder) WithBackend(be Backend) *Builder {
	b.backend = be
	return b
}

// WithStore injects the durable store. The caller keeps ownership; Close on
// the engine will not close it.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis has Build construct a Redis-backed store on client. The engine
// owns the store (not the client) and closes it on Close. Ignored when
// WithStore was also called.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithEventSink sets the sink behind the async event dispatcher.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the components, and starts the
// heartbeat, auto-save, and store watch loops. It does not perform the
// initial refresh; call [Engine.Refresh] once the engine should go live.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	be := b.backend
	if be == nil {
		if cfg.Backend.BaseURL == "" {
			return nil, ErrBackendRequired
		}
		client, err := backend.NewClient(backend.Config{
			BaseURL:   cfg.Backend.BaseURL,
			Timeout:   cfg.Backend.Timeout,
			UserAgent: cfg.Backend.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		be = client
	}

	store := b.store
	ownsStore := false
	if store == nil && b.redis != nil {
		redisStore, err := kv.NewRedisStore(b.redis, redisKeyPrefix)
		if err != nil {
			return nil, err
		}
		store = redisStore
		ownsStore = true
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	metrics := NewMetrics(cfg.Metrics)
	tokens := newTokenStore(store, cfg.Token, metrics)

	engine := &Engine{
		config:    cfg,
		backend:   be,
		store:     store,
		tokens:    tokens,
		probe:     newAuthStateProbe(be, tokens, cfg.Sync, metrics),
		cache:     newBalanceCache(store, be, cfg.Cache, cfg.Sync, metrics),
		events:    events.NewDispatcher(events.Config(cfg.Events), b.sink),
		metrics:   metrics,
		session:   Session{Mode: ModeGuest},
		amount:    cfg.Sync.GuestDefaultBalance,
		subs:      make(map[uint64]func(Event)),
		ownsStore: ownsStore,
		done:      make(chan struct{}),
		now:       time.Now,
	}

	if cfg.Sync.HeartbeatInterval > 0 {
		engine.wg.Add(1)
		go engine.heartbeatLoop(cfg.Sync.HeartbeatInterval)
	}
	if cfg.Sync.AutoSaveInterval > 0 {
		engine.wg.Add(1)
		go engine.autoSaveLoop(cfg.Sync.AutoSaveInterval)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	engine.watchCancel = cancel
	changes, err := store.Watch(watchCtx)
	switch {
	case err == nil:
		engine.wg.Add(1)
		go engine.watchLoop(changes)
	case errors.Is(err, kv.ErrWatchUnsupported):
		// Single-instance store, nothing to fold in.
		cancel()
		engine.watchCancel = nil
	default:
		cancel()
		engine.Close()
		return nil, err
	}

	b.built = true
	return engine, nil
}
