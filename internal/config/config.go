package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrMissing     = errors.New("config: required setting missing")
	ErrPlaceholder = errors.New("config: setting still holds a template value")
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendGoTrue = "gotrue"
	BackendLocal  = "local"

	// Trace exporters.
	TraceOff    = "off"
	TraceStdout = "stdout"

	placeholderURL    = "https://your-project-ref.supabase.co"
	placeholderKey    = "replace-with-your-actual-key"
	placeholderSecret = "change-me"

	// MinSecretLen is the shortest HRPORTAL_LOCAL_SECRET the local store accepts.
	MinSecretLen = 8
)

// DefaultFiles are read in order; earlier files win, the real environment
// wins over all of them.
var DefaultFiles = []string{".env.local", ".env"}

// Backend holds the session store connection settings.
type Backend struct {
	Kind        string
	URL         string
	AnonKey     string
	LocalSecret string
	// RedirectURL overrides the origin used in emailed links (local development).
	RedirectURL string
}

// Cookie controls session cookie attributes.
type Cookie struct {
	Secure bool
	Domain string
}

// Config is the process-wide, read-only configuration.
type Config struct {
	Env         string
	Addr        string
	GRPCAddr    string
	DatabaseDSN string
	Backend     Backend
	Cookie      Cookie
	DevErrors   bool
	RateBurst   int
	RatePerSec  int
	Version     string
	Trace       string
}

// Load reads the given dotenv files (missing ones are skipped) and then the
// HRPORTAL_* environment. It never fails on backend settings: those are
// checked per request by CheckBackend so the error page can be served.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	cfg := Config{
		Env:         strings.ToLower(get("HRPORTAL_ENV", EnvProduction)),
		Addr:        get("HRPORTAL_ADDR", ":8080"),
		GRPCAddr:    get("HRPORTAL_GRPC_ADDR", ""),
		DatabaseDSN: get("HRPORTAL_PG_DSN", ""),
		Backend: Backend{
			Kind:        strings.ToLower(get("HRPORTAL_SESSION_BACKEND", BackendGoTrue)),
			URL:         strings.TrimRight(get("HRPORTAL_SUPABASE_URL", ""), "/"),
			AnonKey:     get("HRPORTAL_SUPABASE_ANON_KEY", ""),
			LocalSecret: get("HRPORTAL_LOCAL_SECRET", ""),
			RedirectURL: strings.TrimRight(get("HRPORTAL_REDIRECT_URL", ""), "/"),
		},
		Cookie: Cookie{
			Domain: get("HRPORTAL_COOKIE_DOMAIN", ""),
		},
		Version: get("HRPORTAL_VERSION", "dev"),
		Trace:   strings.ToLower(get("HRPORTAL_TRACE", TraceOff)),
	}
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return Config{}, fmt.Errorf("HRPORTAL_ENV: unknown environment %q", cfg.Env)
	}
	if cfg.Backend.Kind != BackendGoTrue && cfg.Backend.Kind != BackendLocal {
		return Config{}, fmt.Errorf("HRPORTAL_SESSION_BACKEND: unknown backend %q", cfg.Backend.Kind)
	}
	if cfg.Trace != TraceOff && cfg.Trace != TraceStdout {
		return Config{}, fmt.Errorf("HRPORTAL_TRACE: unknown exporter %q", cfg.Trace)
	}

	var err error
	if cfg.Cookie.Secure, err = parseBool(get("HRPORTAL_COOKIE_SECURE", ""), cfg.Env == EnvProduction); err != nil {
		return Config{}, fmt.Errorf("HRPORTAL_COOKIE_SECURE: %w", err)
	}
	if cfg.DevErrors, err = parseBool(get("HRPORTAL_DEV_ERRORS", ""), false); err != nil {
		return Config{}, fmt.Errorf("HRPORTAL_DEV_ERRORS: %w", err)
	}
	if cfg.RateBurst, err = parseInt(get("HRPORTAL_RATE_BURST", ""), 10); err != nil {
		return Config{}, fmt.Errorf("HRPORTAL_RATE_BURST: %w", err)
	}
	if cfg.RatePerSec, err = parseInt(get("HRPORTAL_RATE_PER_SEC", ""), 5); err != nil {
		return Config{}, fmt.Errorf("HRPORTAL_RATE_PER_SEC: %w", err)
	}
	if cfg.Backend.RedirectURL != "" {
		if _, err := absoluteURL(cfg.Backend.RedirectURL); err != nil {
			return Config{}, fmt.Errorf("HRPORTAL_REDIRECT_URL: %w", err)
		}
	}
	return cfg, nil
}

// Tracing reports whether spans are exported.
func (c Config) Tracing() bool { return c.Trace == TraceStdout }

// Development reports whether the process runs in local development mode.
func (c Config) Development() bool { return c.Env == EnvDevelopment }

// ShowStackTraces reports whether error pages may include stack traces.
// Production never does, whatever HRPORTAL_DEV_ERRORS says.
func (c Config) ShowStackTraces() bool { return c.DevErrors && c.Development() }

// CheckBackend reports whether the session store settings are usable.
func (c Config) CheckBackend() error {
	return c.Backend.Check()
}

// Check validates b for its kind.
func (b Backend) Check() error {
	switch b.Kind {
	case BackendLocal:
		if b.LocalSecret == "" {
			return fmt.Errorf("%w: HRPORTAL_LOCAL_SECRET", ErrMissing)
		}
		if strings.Contains(b.LocalSecret, placeholderSecret) {
			return fmt.Errorf("%w: HRPORTAL_LOCAL_SECRET", ErrPlaceholder)
		}
		if len(b.LocalSecret) < MinSecretLen {
			return fmt.Errorf("%w: HRPORTAL_LOCAL_SECRET must be at least %d bytes", ErrMissing, MinSecretLen)
		}
		return nil
	default:
		if b.URL == "" {
			return fmt.Errorf("%w: HRPORTAL_SUPABASE_URL", ErrMissing)
		}
		if b.AnonKey == "" {
			return fmt.Errorf("%w: HRPORTAL_SUPABASE_ANON_KEY", ErrMissing)
		}
		if b.URL == placeholderURL {
			return fmt.Errorf("%w: HRPORTAL_SUPABASE_URL", ErrPlaceholder)
		}
		if strings.Contains(b.AnonKey, placeholderKey) {
			return fmt.Errorf("%w: HRPORTAL_SUPABASE_ANON_KEY", ErrPlaceholder)
		}
		if _, err := absoluteURL(b.URL); err != nil {
			return fmt.Errorf("%w: HRPORTAL_SUPABASE_URL: %v", ErrMissing, err)
		}
		return nil
	}
}

func absoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return u, nil
}

func parseBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func parseInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
