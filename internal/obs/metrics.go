package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	guardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrportal_guard_decisions_total",
			Help: "Route guard outcomes (allow, redirect_login, redirect_landing, config_error, excluded).",
		},
		[]string{"outcome"},
	)

	callbackResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrportal_auth_callback_total",
			Help: "Auth callback outcomes.",
		},
		[]string{"result"},
	)

	sessionRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrportal_session_refresh_total",
			Help: "Session resolution outcomes per request.",
		},
		[]string{"result"},
	)

	storeQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hrportal_store_query_duration_seconds",
			Help:    "Repository call latencies in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"table", "op", "result"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hrportal_ready",
		Help: "1 when the backend configuration is valid and the database answers.",
	})

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			guardDecisions, callbackResults, sessionRefreshes, storeQueryDuration, ready, buildInfo,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGuardDecision counts a middleware decision.
func ObserveGuardDecision(outcome string) {
	guardDecisions.WithLabelValues(outcome).Inc()
}

// ObserveCallback counts an auth callback outcome.
func ObserveCallback(result string) {
	callbackResults.WithLabelValues(result).Inc()
}

// ObserveSessionRefresh counts a session resolution outcome.
func ObserveSessionRefresh(result string) {
	sessionRefreshes.WithLabelValues(result).Inc()
}

// ObserveStoreQuery records repository latency.
func ObserveStoreQuery(table, op, result string, d time.Duration) {
	storeQueryDuration.WithLabelValues(table, op, result).Observe(d.Seconds())
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument wraps next with in-flight, count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var knownPaths = map[string]struct{}{
	"/":                            {},
	"/healthz":                     {},
	"/readyz":                      {},
	"/metrics":                     {},
	"/logout":                      {},
	"/auth/login":                  {},
	"/auth/register":               {},
	"/auth/verify":                 {},
	"/auth/resend":                 {},
	"/auth/check-email":            {},
	"/auth/callback":               {},
	"/auth/auth-code-error":        {},
	"/dashboard":                   {},
	"/dashboard/profile":           {},
	"/dashboard/attendance":        {},
	"/dashboard/leaves":            {},
	"/dashboard/leaves/new":        {},
	"/dashboard/salary":            {},
	"/dashboard/notifications":     {},
	"/dashboard/settings":          {},
	"/dashboard/settings/password": {},
	"/admin":                       {},
	"/admin/employees":             {},
	"/team":                        {},
}

// CanonicalPath bounds the path label: known routes map to themselves,
// static assets collapse to one bucket, everything else is "other".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	if strings.HasPrefix(path, "/team/leaves/") && !strings.Contains(path[len("/team/leaves/"):], "/") {
		return "/team/leaves/{id}"
	}
	for _, prefix := range []string{"/static/", "/assets/", "/_next/"} {
		if strings.HasPrefix(path, prefix) {
			return "/static/*"
		}
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
