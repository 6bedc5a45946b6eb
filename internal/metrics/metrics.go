package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcomes.
const (
	TxCommitted = "committed"
	TxReadOnly  = "read_only"
	TxConflict  = "conflict"
	TxAborted   = "aborted"
	TxFailed    = "failed"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matelock_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matelock_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matelock_db_latency_seconds",
		Help:    "Histogram of document store operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matelock_docstore_transactions_total",
		Help: "Document store transaction attempts by outcome.",
	}, []string{"backend", "outcome"})

	setupTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matelock_setup_transitions_total",
		Help: "Committed setup operations by operation and resulting phase.",
	}, []string{"operation", "phase"})

	setupRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matelock_setup_guard_rejections_total",
		Help: "Setup operations refused by a step or phase guard.",
	}, []string{"operation", "code"})

	breakEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matelock_break_events_total",
		Help: "Break request lifecycle events.",
	}, []string{"event"})

	pairingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matelock_pairing_events_total",
		Help: "Pair creations and joins by outcome.",
	}, []string{"event", "outcome"})
)

// Middleware records request metrics per chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records the latency of a document store operation.
func ObserveDBLatency(operation string, start time.Time) {
	dbLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveTransaction counts one transaction attempt.
func ObserveTransaction(backend, outcome string) {
	transactionsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveSetupTransition counts a committed setup operation.
func ObserveSetupTransition(operation, phase string) {
	setupTransitionsTotal.WithLabelValues(operation, phase).Inc()
}

// ObserveSetupRejection counts a guard violation.
func ObserveSetupRejection(operation, code string) {
	setupRejectedTotal.WithLabelValues(operation, code).Inc()
}

// ObserveBreakEvent counts a break request event.
func ObserveBreakEvent(event string) {
	breakEventsTotal.WithLabelValues(event).Inc()
}

// ObservePairing counts a pairing attempt.
func ObservePairing(event, outcome string) {
	pairingEventsTotal.WithLabelValues(event, outcome).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
