package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signal service.
type Metrics struct {
	// Stream ingestion
	TicksTotal    *prometheus.CounterVec // labels: outcome
	RejectedTicks *prometheus.CounterVec // labels: reason
	Subscriptions prometheus.Counter
	StreamErrors  prometheus.Counter
	StreamActive  prometheus.Gauge
	BufferLen     *prometheus.GaugeVec // labels: symbol, interval

	// Pull fallback
	FallbackFetches *prometheus.CounterVec // labels: result
	FetchDur        prometheus.Histogram

	// Indicator engine
	ComputeDur   prometheus.Histogram
	ComputeTotal *prometheus.CounterVec // labels: source

	// Result sinks
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	SinkErrors      *prometheus.CounterVec // labels: sink
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_ticks_total",
			Help: "Kline ticks applied to a buffer, by outcome",
		}, []string{"outcome"}),
		RejectedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_rejected_ticks_total",
			Help: "Kline ticks rejected before reaching a buffer",
		}, []string{"reason"}),
		Subscriptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_subscriptions_total",
			Help: "Live stream subscriptions started",
		}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_stream_errors_total",
			Help: "Live streams that ended with a transport error",
		}),
		StreamActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_stream_active",
			Help: "1 while a live stream is running",
		}),
		BufferLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_buffer_candles",
			Help: "Candles held per symbol/interval buffer",
		}, []string{"symbol", "interval"}),

		FallbackFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_fallback_fetches_total",
			Help: "REST history fetches, by result (seeded, backfilled, oneoff, error)",
		}, []string{"result"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_fetch_duration_seconds",
			Help:    "REST klines fetch latency",
			Buckets: prometheus.DefBuckets,
		}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_compute_duration_seconds",
			Help:    "Full indicator catalogue compute latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ComputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_computations_total",
			Help: "Indicator computations, by candle source",
		}, []string{"source"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_sqlite_commit_duration_seconds",
			Help:    "SQLite journal commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_sink_errors_total",
			Help: "Failed result writes, by sink",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.RejectedTicks,
		m.Subscriptions,
		m.StreamErrors,
		m.StreamActive,
		m.BufferLen,
		m.FallbackFetches,
		m.FetchDur,
		m.ComputeDur,
		m.ComputeTotal,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.SinkErrors,
	)

	return m
}

// HealthStatus tracks stream and sink liveness for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool
	StreamKey       string
	LastTickTime    time.Time

	RedisEnabled, RedisConnected bool
	SQLiteEnabled, SQLiteOK      bool
	RedisLatencyMs               float64
	SQLiteLatencyMs              float64

	LastCheckAt time.Time
	StartedAt   time.Time
}

// NewHealthStatus starts the uptime clock.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetStream(key string, connected bool) {
	h.mu.Lock()
	h.StreamKey = key
	h.StreamConnected = connected
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) EnableRedis() {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = true
	h.mu.Unlock()
}

func (h *HealthStatus) EnableSQLite() {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = true
	h.mu.Unlock()
}

// timedPing times ping and returns whether it succeeded and how long it took.
func timedPing(ping func() error) (bool, float64) {
	start := time.Now()
	err := ping()
	return err == nil, float64(time.Since(start).Microseconds()) / 1000
}

// CheckRedis pings Redis and records the outcome.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	ok, ms := timedPing(func() error { return rdb.Ping(ctx).Err() })
	h.mu.Lock()
	h.RedisConnected, h.RedisLatencyMs, h.LastCheckAt = ok, ms, time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records the outcome.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	ok, ms := timedPing(func() error { return db.PingContext(ctx) })
	h.mu.Lock()
	h.SQLiteOK, h.SQLiteLatencyMs, h.LastCheckAt = ok, ms, time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(pingCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(pingCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

type sinkReport struct {
	Enabled   bool    `json:"enabled"`
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
}

type healthReport struct {
	Status    string     `json:"status"`
	Uptime    string     `json:"uptime"`
	Stream    string     `json:"stream,omitempty"`
	Connected bool       `json:"stream_connected"`
	LastTick  string     `json:"last_tick_time,omitempty"`
	TickAge   string     `json:"tick_age,omitempty"`
	Redis     sinkReport `json:"redis"`
	SQLite    sinkReport `json:"sqlite"`
	CheckedAt string     `json:"last_check_at,omitempty"`
}

func (h *HealthStatus) report() (healthReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rep := healthReport{
		Status:    "healthy",
		Uptime:    time.Since(h.StartedAt).Round(time.Second).String(),
		Stream:    h.StreamKey,
		Connected: h.StreamConnected,
		Redis:     sinkReport{h.RedisEnabled, h.RedisConnected, h.RedisLatencyMs},
		SQLite:    sinkReport{h.SQLiteEnabled, h.SQLiteOK, h.SQLiteLatencyMs},
	}
	if !h.LastTickTime.IsZero() {
		rep.LastTick = h.LastTickTime.Format(time.RFC3339)
		rep.TickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		rep.CheckedAt = h.LastCheckAt.Format(time.RFC3339)
	}
	// Only enabled sinks count; an idle service with no stream is healthy.
	healthy := (!rep.Redis.Enabled || rep.Redis.OK) && (!rep.SQLite.Enabled || rep.SQLite.OK)
	if !healthy {
		rep.Status = "degraded"
	}
	return rep, healthy
}

// ServeHTTP handles /healthz.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep, healthy := h.report()
	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}
