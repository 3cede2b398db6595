package cryptosync

import (
	"errors"
	"math"
	"time"
)

// Config carries every tunable of the sync engine. Zero values are not
// usable directly; start from [New] (which applies defaults) or call
// [LoadConfigFile].
type Config struct {
	Backend BackendConfig
	Token   TokenConfig
	Cache   CacheConfig
	Sync    SyncConfig
	Events  EventsConfig
	Metrics MetricsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig configures the constructed [backend.Client]. Ignored when a
// Backend implementation is injected through [Builder.WithBackend].
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls credential bookkeeping.
type TokenConfig struct {
	// DefaultTTL applies when the backend omits expires_in and the token
	// carries no parseable exp claim.
	DefaultTTL time.Duration `yaml:"default_ttl"`
	// ClockSkew shortens the usable window; a token within ClockSkew of its
	// expiry is already treated as expired.
	ClockSkew time.Duration `yaml:"clock_skew"`
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the guest-mode balance resolution chain.
type CacheConfig struct {
	// EnableServerRestore consults the sync_balance restore endpoint when
	// the local store has no usable value.
	EnableServerRestore bool `yaml:"enable_server_restore"`
	// EnableCookieFallback consults the server-set demo balance cookie
	// after the restore call.
	EnableCookieFallback bool `yaml:"enable_cookie_fallback"`
	// WriteBack persists the resolved value into the local store so the
	// next load prefers the freshly confirmed number.
	WriteBack bool `yaml:"write_back"`
}

/*
====================================
SYNC CONFIG
====================================
*/

// SyncConfig controls the engine's reconciliation behavior.
type SyncConfig struct {
	// HeartbeatInterval re-runs Refresh to pick up server-side and
	// cross-instance changes. Zero disables the loop.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// AutoSaveInterval persists and syncs the guest balance. Zero disables
	// the loop.
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`
	// ErrorThreshold is the consecutive-failure count that trips the
	// circuit breaker, after which Balance serves the safe constant.
	ErrorThreshold int `yaml:"error_threshold"`
	// GuestDefaultBalance is the hardcoded guest fallback, the last link of
	// the resolution chain and the guest-mode circuit-breaker value.
	GuestDefaultBalance float64 `yaml:"guest_default_balance"`
	// AuthFallbackBalance is the authenticated-mode circuit-breaker value.
	// Kept distinct from the guest constant so a tripped breaker never
	// fabricates demo money on a real account.
	AuthFallbackBalance float64 `yaml:"auth_fallback_balance"`
	// GuestUsername names the hardcoded fallback identity used when even
	// the guest-defaults endpoint is unreachable.
	GuestUsername string `yaml:"guest_username"`
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls the ambient event dispatcher. Subscribers registered
// through [Engine.Subscribe] are always delivered to, regardless of these
// settings.
type EventsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters and the refresh latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration [New] starts from. Mutate the copy
// and pass it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Timeout:   10 * time.Second,
			UserAgent: "cryptosync",
		},
		Token: TokenConfig{
			DefaultTTL: 30 * time.Minute,
			ClockSkew:  30 * time.Second,
		},
		Cache: CacheConfig{
			EnableServerRestore:  true,
			EnableCookieFallback: true,
			WriteBack:            true,
		},
		Sync: SyncConfig{
			HeartbeatInterval:   30 * time.Second,
			AutoSaveInterval:    60 * time.Second,
			ErrorThreshold:      5,
			GuestDefaultBalance: 5000,
			AuthFallbackBalance: 0,
			GuestUsername:       "guest_player",
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All fields are value types today; the clone still goes through one
	// place so future reference fields keep the immutability contract.
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Backend.Timeout < 0 {
		return errors.New("Backend.Timeout must be >= 0")
	}
	if c.Token.DefaultTTL <= 0 {
		return errors.New("Token.DefaultTTL must be > 0")
	}
	if c.Token.ClockSkew < 0 || c.Token.ClockSkew > 5*time.Minute {
		return errors.New("Token.ClockSkew must be within [0, 5m]")
	}
	if c.Sync.HeartbeatInterval < 0 {
		return errors.New("Sync.HeartbeatInterval must be >= 0")
	}
	if c.Sync.AutoSaveInterval < 0 {
		return errors.New("Sync.AutoSaveInterval must be >= 0")
	}
	if c.Sync.HeartbeatInterval > 0 && c.Sync.HeartbeatInterval < time.Second {
		return errors.New("Sync.HeartbeatInterval must be >= 1s when enabled")
	}
	if c.Sync.AutoSaveInterval > 0 && c.Sync.AutoSaveInterval < time.Second {
		return errors.New("Sync.AutoSaveInterval must be >= 1s when enabled")
	}
	if c.Sync.ErrorThreshold < 1 {
		return errors.New("Sync.ErrorThreshold must be >= 1")
	}
	if math.IsNaN(c.Sync.GuestDefaultBalance) || c.Sync.GuestDefaultBalance < 0 {
		return errors.New("Sync.GuestDefaultBalance must be a non-negative number")
	}
	if math.IsNaN(c.Sync.AuthFallbackBalance) || c.Sync.AuthFallbackBalance < 0 {
		return errors.New("Sync.AuthFallbackBalance must be a non-negative number")
	}
	if c.Sync.GuestUsername == "" {
		return errors.New("Sync.GuestUsername must not be empty")
	}
	if c.Events.Enabled && c.Events.BufferSize < 1 {
		return errors.New("Events.BufferSize must be >= 1 when enabled")
	}
	return nil
}
