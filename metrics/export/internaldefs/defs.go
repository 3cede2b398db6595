package internaldefs

import (
	cryptosync "github.com/JakobS1900/cryptosync"
)

// CounterDef binds a core metric ID to its stable exported name.
type CounterDef struct {
	ID   cryptosync.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   cryptosync.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Order here is render order in the
// Prometheus text format.
var CounterDefs = []CounterDef{
	{ID: cryptosync.MetricRefreshSuccess, Name: "cryptosync_refresh_success_total", Help: "Refreshes that resolved a balance."},
	{ID: cryptosync.MetricRefreshFailure, Name: "cryptosync_refresh_failure_total", Help: "Refreshes that kept the last-known-good balance after a failure."},
	{ID: cryptosync.MetricRefreshDeduped, Name: "cryptosync_refresh_deduped_total", Help: "Refresh calls coalesced onto an in-flight refresh."},
	{ID: cryptosync.MetricUpdateApplied, Name: "cryptosync_update_applied_total", Help: "Accepted balance mutations."},
	{ID: cryptosync.MetricUpdateNoop, Name: "cryptosync_update_noop_total", Help: "Balance mutations matching the current value."},
	{ID: cryptosync.MetricUpdateRejected, Name: "cryptosync_update_rejected_total", Help: "Balance mutations refused without an error."},
	{ID: cryptosync.MetricUpdateClamped, Name: "cryptosync_update_clamped_total", Help: "Anomalous balance inputs clamped to zero."},
	{ID: cryptosync.MetricProbeOffline, Name: "cryptosync_probe_offline_total", Help: "Auth probes that fell back to cached local evidence."},
	{ID: cryptosync.MetricGuestDefaultServed, Name: "cryptosync_guest_default_served_total", Help: "Guest sessions built from server-provided defaults."},
	{ID: cryptosync.MetricGuestHardcoded, Name: "cryptosync_guest_hardcoded_total", Help: "Guest sessions built from the hardcoded fallback identity."},
	{ID: cryptosync.MetricAuthExpired, Name: "cryptosync_auth_expired_total", Help: "401 responses that forced a guest transition."},
	{ID: cryptosync.MetricCircuitOpen, Name: "cryptosync_circuit_open_total", Help: "Balance reads served the safe constant."},
	{ID: cryptosync.MetricStoreWriteFailure, Name: "cryptosync_store_write_failure_total", Help: "Swallowed local persistence failures."},
	{ID: cryptosync.MetricCrossTabApplied, Name: "cryptosync_cross_tab_applied_total", Help: "Balances folded in from another engine instance."},
	{ID: cryptosync.MetricTokenExpired, Name: "cryptosync_token_expired_total", Help: "Tokens discarded by expire-on-read."},
	{ID: cryptosync.MetricCookieFallback, Name: "cryptosync_cookie_fallback_total", Help: "Balances resolved from the demo cookie."},
	{ID: cryptosync.MetricLoginSuccess, Name: "cryptosync_login_success_total", Help: "Successful logins and registrations."},
	{ID: cryptosync.MetricLoginFailure, Name: "cryptosync_login_failure_total", Help: "Failed logins and registrations."},
	{ID: cryptosync.MetricLogout, Name: "cryptosync_logout_total", Help: "Logout operations."},
	{ID: cryptosync.MetricHeartbeatTick, Name: "cryptosync_heartbeat_tick_total", Help: "Heartbeat loop iterations."},
	{ID: cryptosync.MetricAutoSaveTick, Name: "cryptosync_auto_save_tick_total", Help: "Auto-save loop iterations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: cryptosync.MetricRefreshLatency, Name: "cryptosync_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// HistogramBounds are the upper bounds of the core histogram buckets, in
// seconds, as rendered into Prometheus le labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bound spellings usable inside OTel instrument
// names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed bucket
// count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form the
// Prometheus histogram format requires.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
