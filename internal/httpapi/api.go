// Package httpapi is the HTTP surface of the portal: the session middleware,
// the auth callback, auth actions and the page loaders.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"hrportal.org/internal/audit"
	"hrportal.org/internal/auth"
	"hrportal.org/internal/config"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/obs"
	"hrportal.org/internal/session"
)

const maxBodyBytes = 1 << 20

// Pinger is satisfied by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness is the /readyz check: usable backend settings and a reachable
// database. Nil members are skipped.
type Readiness struct {
	Backend func() error
	DB      Pinger
}

func (rp Readiness) Check(ctx context.Context) error {
	if rp.Backend != nil {
		if err := rp.Backend(); err != nil {
			return err
		}
	}
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	cfg       config.Config
	store     auth.SessionStore
	profiles  hr.ProfileStore
	activity  hr.ActivityStore
	log       *obs.Logger
	audit     *audit.Recorder
	codec     session.Codec
	refresher *session.Refresher
	ready     Readiness
	validate  *validator.Validate
	limiter   *rateLimiter
	tracing   trace.TracerProvider
	now       func() time.Time
}

// Option customises an API.
type Option func(*API)

func WithLogger(l *obs.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithProfiles sets the profile repository; without one every profile is
// synthesized.
func WithProfiles(p hr.ProfileStore) Option {
	return func(a *API) { a.profiles = p }
}

// WithActivity sets the attendance and leave repository; without one the
// dashboards render zeroed stats.
func WithActivity(s hr.ActivityStore) Option {
	return func(a *API) { a.activity = s }
}

func WithAudit(r *audit.Recorder) Option {
	return func(a *API) { a.audit = r }
}

func WithReadiness(rp Readiness) Option {
	return func(a *API) { a.ready = rp }
}

// WithTracerProvider sets where request spans go; the global provider is
// used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *API) { a.tracing = tp }
}

func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

// New wires the routes. store may be nil only when the backend settings are
// invalid; the session middleware then redirects before it is consulted.
func New(cfg config.Config, store auth.SessionStore, opts ...Option) *API {
	a := &API{
		mux:   http.NewServeMux(),
		cfg:   cfg,
		store: store,
		log:   obs.Discard(),
		codec: session.NewCodec(cfg.Cookie.Secure, cfg.Cookie.Domain),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.refresher = session.NewRefresher(store, a.log)
	a.validate = newValidator()
	a.limiter = newRateLimiter(cfg.RateBurst, cfg.RatePerSec, a.now)

	// Only credential submissions spend tokens; the page models do not.
	limited := func(h http.HandlerFunc) http.Handler {
		lim := a.limiter.wrap(h)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				h(w, r)
				return
			}
			lim.ServeHTTP(w, r)
		})
	}

	// operational
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// auth section
	a.mux.Handle("/auth/login", limited(a.handleLogin))
	a.mux.Handle("/auth/register", limited(a.handleRegister))
	a.mux.Handle("/auth/verify", limited(a.handleVerify))
	a.mux.Handle("/auth/resend", limited(a.handleResend))
	a.mux.HandleFunc("/auth/check-email", a.handleCheckEmail)
	a.mux.HandleFunc("/auth/callback", a.handleCallback)
	a.mux.HandleFunc("/auth/auth-code-error", a.handleErrorPage)
	a.mux.HandleFunc("/logout", a.handleLogout)

	// pages
	a.mux.HandleFunc("/dashboard", a.handleDashboard)
	a.mux.HandleFunc("/dashboard/", a.handleDashboardSection)
	a.mux.HandleFunc("/dashboard/profile", a.handleProfile)
	a.mux.HandleFunc("/dashboard/leaves/new", a.handleNewLeave)
	a.mux.Handle("/dashboard/settings/password", limited(a.handlePassword))
	a.mux.HandleFunc("/admin", a.handleAdmin)
	a.mux.HandleFunc("/admin/employees", a.handleEmployees)
	a.mux.HandleFunc("/team", a.handleTeam)
	a.mux.HandleFunc("/team/leaves/{id}", a.handleLeaveReview)

	a.mux.HandleFunc("/", a.handleRoot)

	return a
}

// Handler returns the full middleware chain around the routes.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recover(a.log, a.cfg.ShowStackTraces(), h)
	h = LoggingJSON(a.log, h)
	h = RequestID(h)
	h = obs.Instrument(h)
	return otelhttp.NewHandler(h, obs.ServiceName, a.traceOptions()...)
}

// traceOptions names server spans by route so span names stay bounded.
// Scrapes and liveness checks are not traced.
func (a *API) traceOptions() []otelhttp.Option {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + obs.CanonicalPath(r.URL.Path)
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
		}),
	}
	if a.tracing != nil {
		opts = append(opts, otelhttp.WithTracerProvider(a.tracing))
	}
	return opts
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hrportal",
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorCode(w, r, code, "", msg)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if errCode != "" {
		payload["code"] = errCode
	}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// redirect answers GET and HEAD with 307 and everything else with 303, so a
// redirected form post is followed with a GET.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	code := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		code = http.StatusTemporaryRedirect
	}
	http.Redirect(w, r, target, code)
}

// authError maps a session store failure to a response.
func (a *API) authError(w http.ResponseWriter, r *http.Request, err error) {
	msg := auth.Message(err)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", msg)
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		writeErrorCode(w, r, http.StatusForbidden, "email_not_confirmed", msg)
	case errors.Is(err, auth.ErrUserExists):
		writeErrorCode(w, r, http.StatusConflict, "user_exists", msg)
	case errors.Is(err, auth.ErrInvalidInput):
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_input", msg)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNoSession):
		writeErrorCode(w, r, http.StatusUnauthorized, "invalid_token", msg)
	case errors.Is(err, auth.ErrRateLimited):
		writeErrorCode(w, r, http.StatusTooManyRequests, "rate_limited", msg)
	case errors.Is(err, auth.ErrUnavailable):
		a.log.Exception(r.Context(), err, "Authentication", "store_unavailable", nil)
		writeErrorCode(w, r, http.StatusServiceUnavailable, "unavailable", msg)
	default:
		a.log.Exception(r.Context(), err, "Authentication", "unexpected_error", nil)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) record(ctx context.Context, event string, fields map[string]any) {
	if err := a.audit.LogEvent(ctx, event, fields); err != nil {
		a.log.Warn(ctx, "audit write failed", obs.Fields{"event": event, "error": err})
	}
}
