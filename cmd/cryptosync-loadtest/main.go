package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	cryptosync "github.com/JakobS1900/cryptosync"
)

func main() {
	var (
		engines     = flag.Int("engines", 4, "number of engine instances sharing one store")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (refresh + update)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *engines <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "engines, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	server := newFakeBackend()
	defer server.Close()

	cfg := defaultLoadConfig(server.URL)
	instances := make([]*cryptosync.Engine, *engines)
	for i := range instances {
		engine, err := cryptosync.New().
			WithConfig(cfg).
			WithRedis(client).
			WithMetricsEnabled(true).
			WithLatencyHistograms(true).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build engine %d: %v\n", i, err)
			os.Exit(1)
		}
		defer engine.Close()
		instances[i] = engine
	}

	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		engine := instances[i%len(instances)]
		return engine.Refresh(nil)
	})
	updateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		engine := instances[i%len(instances)]
		amount := float64(r.Intn(10000)) + 0.5
		_, err := engine.UpdateBalance(nil, amount, "loadtest")
		return err
	})

	fmt.Println("---- results ----")
	printStats("refresh", refreshStats)
	printStats("update", updateStats)

	snapshot := instances[0].MetricsSnapshot()
	fmt.Printf("engine[0]: deduped=%d cross_tab=%d events_dropped=%d\n",
		snapshot.Counters[cryptosync.MetricRefreshDeduped],
		snapshot.Counters[cryptosync.MetricCrossTabApplied],
		instances[0].EventsDropped(),
	)
}

// defaultLoadConfig disables the background loops; both phases drive the
// engine explicitly and timers would only blur the numbers.
func defaultLoadConfig(baseURL string) cryptosync.Config {
	cfg := cryptosync.DefaultConfig()
	cfg.Backend.BaseURL = baseURL
	cfg.Sync.HeartbeatInterval = 0
	cfg.Sync.AutoSaveInterval = 0
	return cfg
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// fakeBackend is a minimal in-process CryptoChecker server: everyone is a
// guest, and one shared demo balance backs the sync endpoint.
type fakeBackend struct {
	mu      sync.Mutex
	balance float64
}

func newFakeBackend() *httptest.Server {
	fb := &fakeBackend{balance: 5000}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"authenticated": false,
			"guest_mode":    true,
			"guest_user": map[string]any{
				"id":             "guest-load",
				"username":       "guest_player",
				"wallet_balance": 5000.0,
			},
		})
	})
	mux.HandleFunc("/api/auth/guest", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"guest_user": map[string]any{
				"id":             "guest-load",
				"username":       "guest_player",
				"wallet_balance": 5000.0,
			},
		})
	})
	mux.HandleFunc("/api/gaming/roulette/sync_balance", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action          string   `json:"action"`
			FrontendBalance *float64 `json:"frontend_balance"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		fb.mu.Lock()
		if req.Action == "save" && req.FrontendBalance != nil {
			fb.balance = *req.FrontendBalance
		}
		balance := fb.balance
		fb.mu.Unlock()

		writeJSON(w, map[string]any{
			"status": "success",
			"data":   map[string]any{"balance": balance, "is_demo_mode": true},
		})
	})
	mux.HandleFunc("/api/gaming/roulette/update_balance", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Balance float64 `json:"balance"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		fb.mu.Lock()
		fb.balance = req.Balance
		fb.mu.Unlock()

		writeJSON(w, map[string]any{
			"status": "success",
			"data":   map[string]any{"balance": req.Balance},
		})
	})

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
