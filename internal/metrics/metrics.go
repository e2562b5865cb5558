// Package metrics instruments the live trading path with Prometheus and
// serves the /metrics and /healthz endpoints.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading loop.
// It satisfies the exchange client's Recorder interface.
type Metrics struct {
	CandlesTotal  prometheus.Counter
	SignalsTotal  *prometheus.CounterVec // labels: action
	FillsTotal    *prometheus.CounterVec // labels: side
	OrdersBlocked *prometheus.CounterVec // labels: reason
	Equity        prometheus.Gauge
	PositionQty   prometheus.Gauge
	RealizedPnL   prometheus.Gauge

	// Exchange API client
	APICalls       *prometheus.CounterVec // labels: method, outcome
	APIRetries     *prometheus.CounterVec // labels: method
	LimiterWaitDur prometheus.Histogram
	AdaptiveDelay  prometheus.Gauge

	// Feed
	WSReconnects prometheus.Counter

	// Telemetry publishing
	RedisBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_candles_total",
			Help: "Closed candles consumed by the strategy",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Strategy signals emitted (by action)",
		}, []string{"action"}),
		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_fills_total",
			Help: "Executed fills (by side)",
		}, []string{"side"}),
		OrdersBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_blocked_total",
			Help: "Orders not sent (risk guard, sizing, venue rejection)",
		}, []string{"reason"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity_quote",
			Help: "Current equity in quote currency",
		}),
		PositionQty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_position_qty",
			Help: "Current open position quantity in base currency",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_realized_pnl_quote",
			Help: "Cumulative realized PnL in quote currency",
		}),

		APICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_api_calls_total",
			Help: "Exchange API calls (by method and outcome kind)",
		}, []string{"method", "outcome"}),
		APIRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_api_retries_total",
			Help: "Exchange API retry attempts (by method)",
		}, []string{"method"}),
		LimiterWaitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the local rate limiter per call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		AdaptiveDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_adaptive_delay_seconds",
			Help: "Current adaptive extra delay applied before API calls",
		}),

		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_ws_reconnects_total",
			Help: "Trade-stream WebSocket reconnection attempts",
		}),

		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_redis_circuit_breaker_state",
			Help: "Telemetry circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.SignalsTotal,
		m.FillsTotal,
		m.OrdersBlocked,
		m.Equity,
		m.PositionQty,
		m.RealizedPnL,
		m.APICalls,
		m.APIRetries,
		m.LimiterWaitDur,
		m.AdaptiveDelay,
		m.WSReconnects,
		m.RedisBreakerState,
	)

	return m
}

// APICall records one completed exchange API call.
func (m *Metrics) APICall(method, outcome string) {
	m.APICalls.WithLabelValues(method, outcome).Inc()
}

// Retry records one retry attempt for an exchange API call.
func (m *Metrics) Retry(method string) {
	m.APIRetries.WithLabelValues(method).Inc()
}

// RateLimitWait records how long one call waited on the local limiter.
func (m *Metrics) RateLimitWait(d time.Duration) {
	m.LimiterWaitDur.Observe(d.Seconds())
}

// HealthStatus represents the trading process health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool
	LastCandleTime time.Time
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		// SQLite is local and opened before the server starts.
		SQLiteOK: true,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastCandleTime  string  `json:"last_candle_time"`
		CandleAge       string  `json:"candle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
