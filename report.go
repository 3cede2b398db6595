package cryptosync

import "time"

// SyncReport is a static description of how an engine instance was
// configured, intended for startup logs and support dumps. It contains no
// live state; use [Engine.BalanceInfo] and [Engine.MetricsSnapshot] for that.
type SyncReport struct {
	Mode                 string
	HeartbeatActive      bool
	HeartbeatInterval    time.Duration
	AutoSaveActive       bool
	AutoSaveInterval     time.Duration
	ErrorThreshold       int
	GuestDefaultBalance  float64
	AuthFallbackBalance  float64
	ServerRestoreActive  bool
	CookieFallbackActive bool
	WriteBackActive      bool
	CrossTabActive       bool
	EventsActive         bool
	EventsDropIfFull     bool
	MetricsActive        bool
	TokenDefaultTTL      time.Duration
	TokenClockSkew       time.Duration
}

// SyncReport summarizes the engine's effective configuration.
func (e *Engine) SyncReport() SyncReport {
	if e == nil {
		return SyncReport{}
	}

	return SyncReport{
		Mode:                 e.Mode().String(),
		HeartbeatActive:      e.config.Sync.HeartbeatInterval > 0,
		HeartbeatInterval:    e.config.Sync.HeartbeatInterval,
		AutoSaveActive:       e.config.Sync.AutoSaveInterval > 0,
		AutoSaveInterval:     e.config.Sync.AutoSaveInterval,
		ErrorThreshold:       e.config.Sync.ErrorThreshold,
		GuestDefaultBalance:  e.config.Sync.GuestDefaultBalance,
		AuthFallbackBalance:  e.config.Sync.AuthFallbackBalance,
		ServerRestoreActive:  e.config.Cache.EnableServerRestore,
		CookieFallbackActive: e.config.Cache.EnableCookieFallback,
		WriteBackActive:      e.config.Cache.WriteBack,
		CrossTabActive:       e.watchCancel != nil,
		EventsActive:         e.config.Events.Enabled,
		EventsDropIfFull:     e.config.Events.DropIfFull,
		MetricsActive:        e.config.Metrics.Enabled,
		TokenDefaultTTL:      e.config.Token.DefaultTTL,
		TokenClockSkew:       e.config.Token.ClockSkew,
	}
}
