// Package prometheus provides Prometheus rendering for cryptosync metrics.
//
// [NewPrometheusExporter] accepts a [cryptosync.Engine] and exposes an
// [net/http.Handler] that renders all counters and histograms in Prometheus
// text exposition format. Counter names are prefixed cryptosync_*_total; the
// single histogram is cryptosync_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
