// Package metrics exposes Prometheus instrumentation for backtest runs, data
// providers, signal publishing and the signal gateway, plus a /healthz
// endpoint for the long-running commands.
package metrics

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-backtestv1/internal/breaker"
)

// Metrics holds all Prometheus metrics for the backtester.
type Metrics struct {
	// Backtest runs
	RunsTotal     *prometheus.CounterVec   // labels: strategy, result=ok|error
	RunDuration   *prometheus.HistogramVec // labels: strategy
	BarsProcessed prometheus.Counter
	TradesTotal   *prometheus.CounterVec // labels: strategy, outcome=win|loss|even
	SignalsTotal  *prometheus.CounterVec // labels: strategy, kind
	IndicatorHits prometheus.Counter

	// Data providers
	FetchDuration *prometheus.HistogramVec // labels: provider
	FetchFailures *prometheus.CounterVec   // labels: provider
	FetchRetries  *prometheus.CounterVec   // labels: provider
	CacheHits     *prometheus.CounterVec   // labels: result=hit|miss

	// Circuit breaker
	CircuitBreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec // labels: name

	// Signal delivery
	SignalsPublished  *prometheus.CounterVec // labels: kind
	NotificationsSent *prometheus.CounterVec // labels: notifier, result

	// Gateway
	GatewayClients  prometheus.Gauge
	GatewayMessages prometheus.Counter
	GatewayDrops    prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Completed backtest runs by strategy and result",
		}, []string{"strategy", "result"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall time of a single backtest run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"strategy"}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_bars_processed_total",
			Help: "Bars stepped through by the backtest engine",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Closed round-trip trades by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_signals_total",
			Help: "Non-hold signals generated by strategy and kind",
		}, []string{"strategy", "kind"}),
		IndicatorHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_indicator_cache_hits_total",
			Help: "Indicator set computations served from cache",
		}),

		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_fetch_duration_seconds",
			Help:    "Historical bar fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_fetch_failures_total",
			Help: "Failed historical bar fetches",
		}, []string{"provider"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_fetch_retries_total",
			Help: "Retried historical bar fetches",
		}, []string{"provider"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_cache_lookups_total",
			Help: "Bar cache lookups by result",
		}, []string{"result"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "provider_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_circuit_breaker_trips_total",
			Help: "Times the circuit breaker tripped open",
		}, []string{"name"}),

		SignalsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_signals_published_total",
			Help: "Latest signals published to Redis",
		}, []string{"kind"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_notifications_total",
			Help: "Signal alerts sent by notifier and result",
		}, []string{"notifier", "result"}),

		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgw_clients",
			Help: "Connected WebSocket clients",
		}),
		GatewayMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalgw_messages_total",
			Help: "Signal messages fanned out to clients",
		}),
		GatewayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalgw_drops_total",
			Help: "Messages dropped for slow clients",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.BarsProcessed,
		m.TradesTotal,
		m.SignalsTotal,
		m.IndicatorHits,
		m.FetchDuration,
		m.FetchFailures,
		m.FetchRetries,
		m.CacheHits,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.SignalsPublished,
		m.NotificationsSent,
		m.GatewayClients,
		m.GatewayMessages,
		m.GatewayDrops,
	)

	return m
}

// WatchBreaker mirrors b's state into CircuitBreakerState and counts trips.
// Any existing OnStateChange callback keeps firing.
func (m *Metrics) WatchBreaker(b *breaker.Breaker) {
	m.CircuitBreakerState.WithLabelValues(b.Name()).Set(float64(b.State()))
	prev := b.OnStateChange
	b.OnStateChange = func(name string, from, to breaker.State) {
		if prev != nil {
			prev(name, from, to)
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues(name).Inc()
		}
	}
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer defaults to the
// global Prometheus registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if health != nil {
		mux.Handle("/healthz", health)
	}

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler returns the server's mux, for embedding in another server.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

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
