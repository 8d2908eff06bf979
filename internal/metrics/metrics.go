// Package metrics exposes Prometheus instrumentation and the /healthz probe
// for the analyzer's data path, backtests, scans and alerting.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stock-analyzer/internal/model"
	rcache "stock-analyzer/internal/store/redis"
)

// Metrics holds all Prometheus metrics for the analyzer.
type Metrics struct {
	// Data path
	FetchTotal    *prometheus.CounterVec   // labels: source, result=ok|no_data|error
	FetchDur      *prometheus.HistogramVec // labels: source
	BarsIngested  prometheus.Counter
	SQLiteCommits prometheus.Counter

	// Redis cache
	CacheHits                prometheus.Counter
	CacheMisses              prometheus.Counter
	CacheErrors              prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Backtesting
	TradesTotal      *prometheus.CounterVec // labels: action
	TradesRejected   *prometheus.CounterVec // labels: reason
	BacktestRuns     prometheus.Counter
	BacktestDur      prometheus.Histogram
	BacktestLastSize prometheus.Gauge

	// Scanner
	ScansTotal  prometheus.Counter
	ScanDur     prometheus.Histogram
	ScanSignals *prometheus.CounterVec // labels: action

	// Alerting and API
	AlertsTotal *prometheus.CounterVec // labels: result=ok|error
	WSClients   prometheus.Gauge
}

// NewMetrics registers all metrics with reg and returns them. A nil reg
// uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_fetch_total",
			Help: "Bar fetches by data source and outcome",
		}, []string{"source", "result"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_fetch_duration_seconds",
			Help:    "Bar fetch latency by data source",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		BarsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_bars_ingested_total",
			Help: "Daily bars persisted to SQLite",
		}),
		SQLiteCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_sqlite_commits_total",
			Help: "SQLite batch commits",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_cache_hits_total",
			Help: "Redis bar cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_cache_misses_total",
			Help: "Redis bar cache misses",
		}),
		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_cache_errors_total",
			Help: "Redis bar cache errors (fetch falls through to source)",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_backtest_trades_total",
			Help: "Simulated trades executed by action",
		}, []string{"action"}),
		TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_backtest_trades_rejected_total",
			Help: "Simulated trades rejected by reason",
		}, []string{"reason"}),
		BacktestRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_backtest_runs_total",
			Help: "Completed backtest runs",
		}),
		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_backtest_duration_seconds",
			Help:    "Wall-clock duration of a backtest run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		BacktestLastSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_backtest_last_trades",
			Help: "Trades produced by the most recent backtest run",
		}),

		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_scans_total",
			Help: "Completed market scans",
		}),
		ScanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_scan_duration_seconds",
			Help:    "Wall-clock duration of a market scan",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		ScanSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_scan_signals_total",
			Help: "Signals produced by scans, by action",
		}, []string{"action"}),

		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_alerts_total",
			Help: "Alert deliveries by outcome",
		}, []string{"result"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_ws_clients",
			Help: "Connected WebSocket stream clients",
		}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDur,
		m.BarsIngested,
		m.SQLiteCommits,
		m.CacheHits,
		m.CacheMisses,
		m.CacheErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.TradesTotal,
		m.TradesRejected,
		m.BacktestRuns,
		m.BacktestDur,
		m.BacktestLastSize,
		m.ScansTotal,
		m.ScanDur,
		m.ScanSignals,
		m.AlertsTotal,
		m.WSClients,
	)

	return m
}

// ── backtest.Observer ──

func (m *Metrics) TradeExecuted(action string) { m.TradesTotal.WithLabelValues(action).Inc() }

func (m *Metrics) TradeRejected(reason string) { m.TradesRejected.WithLabelValues(reason).Inc() }

func (m *Metrics) RunCompleted(d time.Duration, trades int) {
	m.BacktestRuns.Inc()
	m.BacktestDur.Observe(d.Seconds())
	m.BacktestLastSize.Set(float64(trades))
}

// ── redis.CacheObserver ──

func (m *Metrics) CacheHit()   { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss()  { m.CacheMisses.Inc() }
func (m *Metrics) CacheError() { m.CacheErrors.Inc() }

func (m *Metrics) BreakerState(s rcache.State) {
	m.RedisCircuitBreakerState.Set(float64(s))
	if s == rcache.StateOpen {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// ── Scanner ──

// ScanCompleted records one scan and the actions it produced.
func (m *Metrics) ScanCompleted(d time.Duration, actions []string) {
	m.ScansTotal.Inc()
	m.ScanDur.Observe(d.Seconds())
	for _, a := range actions {
		m.ScanSignals.WithLabelValues(a).Inc()
	}
}

// AlertSent records one alert delivery attempt.
func (m *Metrics) AlertSent(err error) {
	if err != nil {
		m.AlertsTotal.WithLabelValues("error").Inc()
		return
	}
	m.AlertsTotal.WithLabelValues("ok").Inc()
}

// ── Provider instrumentation ──

type instrumented struct {
	source string
	next   model.DataProvider
	m      *Metrics
}

// InstrumentProvider wraps next so every fetch is counted and timed
// under the given source label.
func (m *Metrics) InstrumentProvider(source string, next model.DataProvider) model.DataProvider {
	return &instrumented{source: source, next: next, m: m}
}

func (p *instrumented) FetchBars(ctx context.Context, symbol string, from, to time.Time) (model.Series, error) {
	start := time.Now()
	bars, err := p.next.FetchBars(ctx, symbol, from, to)
	p.m.FetchDur.WithLabelValues(p.source).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case errors.Is(err, model.ErrNoData), err == nil && bars.Empty():
		result = "no_data"
	case err != nil:
		result = "error"
	}
	p.m.FetchTotal.WithLabelValues(p.source, result).Inc()
	return bars, err
}

// ── HTTP server ──

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. metricsHandler is
// usually promhttp.Handler().
func NewServer(addr string, health *HealthStatus, metricsHandler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
