package cryptosync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML, with durations as strings
// ("30s", "1m") so files stay human-editable.
type fileConfig struct {
	Backend struct {
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"backend"`
	Token struct {
		DefaultTTL string `yaml:"default_ttl"`
		ClockSkew  string `yaml:"clock_skew"`
	} `yaml:"token"`
	Cache struct {
		EnableServerRestore  *bool `yaml:"enable_server_restore"`
		EnableCookieFallback *bool `yaml:"enable_cookie_fallback"`
		WriteBack            *bool `yaml:"write_back"`
	} `yaml:"cache"`
	Sync struct {
		HeartbeatInterval   string   `yaml:"heartbeat_interval"`
		AutoSaveInterval    string   `yaml:"auto_save_interval"`
		ErrorThreshold      *int     `yaml:"error_threshold"`
		GuestDefaultBalance *float64 `yaml:"guest_default_balance"`
		AuthFallbackBalance *float64 `yaml:"auth_fallback_balance"`
		GuestUsername       string   `yaml:"guest_username"`
	} `yaml:"sync"`
	Events struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize *int  `yaml:"buffer_size"`
		DropIfFull *bool `yaml:"drop_if_full"`
	} `yaml:"events"`
	Metrics struct {
		Enabled                 *bool `yaml:"enabled"`
		EnableLatencyHistograms *bool `yaml:"enable_latency_histograms"`
	} `yaml:"metrics"`
}

// LoadConfigFile reads a YAML config and overlays it onto the defaults.
// Absent fields keep their default values; the result is validated before
// being returned.
func LoadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Backend.BaseURL != "" {
		cfg.Backend.BaseURL = fc.Backend.BaseURL
	}
	if fc.Backend.UserAgent != "" {
		cfg.Backend.UserAgent = fc.Backend.UserAgent
	}
	if err := overlayDuration(&cfg.Backend.Timeout, fc.Backend.Timeout, "backend.timeout"); err != nil {
		return Config{}, err
	}

	if err := overlayDuration(&cfg.Token.DefaultTTL, fc.Token.DefaultTTL, "token.default_ttl"); err != nil {
		return Config{}, err
	}
	if err := overlayDuration(&cfg.Token.ClockSkew, fc.Token.ClockSkew, "token.clock_skew"); err != nil {
		return Config{}, err
	}

	overlayBool(&cfg.Cache.EnableServerRestore, fc.Cache.EnableServerRestore)
	overlayBool(&cfg.Cache.EnableCookieFallback, fc.Cache.EnableCookieFallback)
	overlayBool(&cfg.Cache.WriteBack, fc.Cache.WriteBack)

	if err := overlayDuration(&cfg.Sync.HeartbeatInterval, fc.Sync.HeartbeatInterval, "sync.heartbeat_interval"); err != nil {
		return Config{}, err
	}
	if err := overlayDuration(&cfg.Sync.AutoSaveInterval, fc.Sync.AutoSaveInterval, "sync.auto_save_interval"); err != nil {
		return Config{}, err
	}
	if fc.Sync.ErrorThreshold != nil {
		cfg.Sync.ErrorThreshold = *fc.Sync.ErrorThreshold
	}
	if fc.Sync.GuestDefaultBalance != nil {
		cfg.Sync.GuestDefaultBalance = *fc.Sync.GuestDefaultBalance
	}
	if fc.Sync.AuthFallbackBalance != nil {
		cfg.Sync.AuthFallbackBalance = *fc.Sync.AuthFallbackBalance
	}
	if fc.Sync.GuestUsername != "" {
		cfg.Sync.GuestUsername = fc.Sync.GuestUsername
	}

	overlayBool(&cfg.Events.Enabled, fc.Events.Enabled)
	if fc.Events.BufferSize != nil {
		cfg.Events.BufferSize = *fc.Events.BufferSize
	}
	overlayBool(&cfg.Events.DropIfFull, fc.Events.DropIfFull)

	overlayBool(&cfg.Metrics.Enabled, fc.Metrics.Enabled)
	overlayBool(&cfg.Metrics.EnableLatencyHistograms, fc.Metrics.EnableLatencyHistograms)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", field, err)
	}
	*dst = d
	return nil
}

func overlayBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
