// Package metrics provides Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts executed bets, partitioned by side.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_bets_total",
		Help: "Total number of bets executed",
	}, []string{"side"})

	// BetLatency is the bet execution latency.
	BetLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_bet_latency_seconds",
		Help:    "Bet execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ClaimsTotal counts claims by result (won, lost, conflict).
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_claims_total",
		Help: "Total number of claim attempts by result",
	}, []string{"result"})

	// ResolutionsTotal counts market resolutions by outcome.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_resolutions_total",
		Help: "Total number of market resolutions",
	}, []string{"outcome"})

	// TransferRetriesTotal counts sweeper retries of unsettled transfers.
	TransferRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_transfer_retries_total",
		Help: "Settlement transfer retries issued by the sweeper",
	})

	// TransferFailuresTotal counts transfers that ended an attempt failed.
	TransferFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_transfer_failures_total",
		Help: "Settlement transfers that failed an attempt",
	})

	// OpenMarkets tracks the number of open markets.
	OpenMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_open_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
