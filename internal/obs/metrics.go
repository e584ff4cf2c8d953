package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	rbacOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_operations_total",
			Help: "RBAC operations by name and outcome.",
		},
		[]string{"op", "outcome"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"name"},
	)

	poolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_in_use_connections",
		Help: "Database connections currently checked out.",
	})

	poolIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_idle_connections",
		Help: "Idle database connections in the pool.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe last succeeded.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		rbacOperationsTotal, breakerState, poolInUse, poolIdle, ready,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRBAC counts one RBAC operation. Outcome is "allowed", "denied" or
// "error" for checks, and "ok"/"refused"/"error" for mutations.
func ObserveRBAC(op, outcome string) {
	rbacOperationsTotal.WithLabelValues(op, outcome).Inc()
}

// SetBreakerState publishes a breaker state transition.
func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}

// SetPoolStats publishes connection pool usage.
func SetPoolStats(inUse, idle int) {
	poolInUse.Set(float64(inUse))
	poolIdle.Set(float64(idle))
}

// SetReady publishes the readiness probe result.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument wraps a handler with request counting, latency and in-flight
// tracking. Paths are canonicalized so that tenant keys and entity names do
// not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// apiShapes maps each /api verb to its parameter placeholders.
var apiShapes = map[string][]string{
	"role":             {":client", ":role"},
	"roles":            {":client"},
	"permission":       {":client", ":role", ":name"},
	"permissions":      {":client", ":role"},
	"membership":       {":client", ":user", ":role"},
	"has_permission":   {":client", ":user", ":name"},
	"user_permissions": {":client", ":user"},
	"user_roles":       {":client", ":user"},
	"members":          {":client", ":role"},
	"which_roles_can":  {":client", ":name"},
	"which_users_can":  {":client", ":name"},
}

// CanonicalPath collapses path parameters into stable placeholders for
// metric labels: /api/membership/<key>/<user>/<role> becomes
// /api/membership/:client/:user/:role. Unknown paths pass through with the
// query string stripped.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" {
		return path
	}
	shape, ok := apiShapes[parts[1]]
	if !ok || len(parts)-2 != len(shape) {
		return path
	}
	return "/api/" + parts[1] + "/" + strings.Join(shape, "/")
}

// statusWriter records the response code written by the inner handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
