// Package metrics provides Prometheus instrumentation for the ledger
// service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts executed transactions by status.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omega_transactions_total",
		Help: "Total number of transactions executed",
	}, []string{"status"})

	// TransactionLatency tracks execution time including commit.
	TransactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omega_transaction_latency_seconds",
		Help:    "Transaction execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	// SimulationsTotal counts simulated transactions by status.
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omega_simulations_total",
		Help: "Total number of simulated transactions",
	}, []string{"status"})

	// InstructionsTotal counts top-level instructions by name and by the
	// result of the transaction that carried them.
	InstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omega_instructions_total",
		Help: "Top-level instructions executed",
	}, []string{"instruction", "result"})

	// ProgramErrors counts failed transactions by error kind.
	ProgramErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omega_program_errors_total",
		Help: "Failed transactions by error kind (runtime, domain, assertion)",
	}, []string{"kind"})

	// ContractsInitialized counts contracts created on the ledger.
	ContractsInitialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omega_contracts_initialized_total",
		Help: "Contracts initialized",
	})

	// ContractsResolved counts contracts resolved by their oracle.
	ContractsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omega_contracts_resolved_total",
		Help: "Contracts resolved",
	})

	// AirdropLamports is the cumulative amount airdropped.
	AirdropLamports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omega_airdrop_lamports_total",
		Help: "Lamports minted by airdrop",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omega_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omega_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omega_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
