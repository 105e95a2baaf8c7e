// Package guard decides whether a request may proceed to the page it asks
// for or must be redirected. Decide is pure; the middleware and every page
// loader call it with the same inputs and get the same answer.
package guard

import "strings"

const (
	RootPath      = "/"
	AuthPrefix    = "/auth"
	LoginPath     = "/auth/login"
	VerifyPath    = "/auth/verify"
	CallbackPath  = "/auth/callback"
	ErrorPath     = "/auth/auth-code-error"
	LandingPath   = "/dashboard"
	ConfigErrCode = "configuration_error"
)

// Decision is either Allow (zero value) or a redirect to Target.
type Decision struct {
	Target string
}

// Allow lets the request through.
var Allow = Decision{}

// Allowed reports whether d lets the request through.
func (d Decision) Allowed() bool { return d.Target == "" }

func redirectTo(target string) Decision { return Decision{Target: target} }

// Exclusion set: paths the session middleware never touches and the guard
// always allows. Terminal error pages are members so a user can always read
// why they were sent there.
var (
	excludedPrefixes = []string{
		"/static/",
		"/assets/",
		"/_next/",
		"/api/",
		ErrorPath + "/",
	}
	excludedExact = map[string]struct{}{
		ErrorPath:      {},
		"/favicon.ico": {},
		"/robots.txt":  {},
		"/healthz":     {},
		"/readyz":      {},
		"/metrics":     {},
	}
)

// Excluded reports whether path bypasses session handling entirely.
func Excluded(path string) bool {
	if _, ok := excludedExact[path]; ok {
		return true
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// InAuthSection reports whether path is one of the sign-in/up screens.
func InAuthSection(path string) bool {
	return path == AuthPrefix || strings.HasPrefix(path, AuthPrefix+"/")
}

// Decide applies the route protection rules:
//   - excluded paths are always allowed;
//   - an authenticated user asking for an auth screen goes to the landing page;
//   - an anonymous user asking for anything but an auth screen or the root
//     goes to the login page (the root page redirects on its own).
func Decide(authenticated bool, path string) Decision {
	if path == "" {
		path = RootPath
	}
	if Excluded(path) {
		return Allow
	}
	inAuth := InAuthSection(path)
	switch {
	case authenticated && inAuth:
		return redirectTo(LandingPath)
	case !authenticated && !inAuth && path != RootPath:
		return redirectTo(LoginPath)
	default:
		return Allow
	}
}

// SafeNext returns next when it is a same-site absolute path, otherwise
// fallback. Protocol-relative ("//host") and backslash forms are rejected.
func SafeNext(next, fallback string) string {
	if next == "" || next[0] != '/' {
		return fallback
	}
	if strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n\t") {
		return fallback
	}
	return next
}
