package httpapi

import (
	"net/http"
	"strings"

	"hrportal.org/internal/guard"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/obs"
)

// invalidLinkURL is where every failed callback lands.
const invalidLinkURL = guard.VerifyPath + "?error=invalid_link"

// handleCallback exchanges the one-time code from an emailed link for a
// session. Every failure ends in the same redirect and sets no session
// cookie; success redirects to next on the public origin.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	code := q.Get("code")
	next := guard.SafeNext(q.Get("next"), guard.LandingPath)

	a.log.Auth(ctx, "callback_received", obs.Fields{"has_code": code != "", "next": next})

	if code == "" {
		obs.ObserveCallback("missing_code")
		a.log.Auth(ctx, "callback_missing_code", nil)
		redirect(w, r, invalidLinkURL)
		return
	}

	s, err := a.store.ExchangeCodeForSession(ctx, code, a.codec.Verifier(r))
	if err != nil || s.User.ID == "" || s.AccessToken == "" {
		obs.ObserveCallback("exchange_failed")
		fields := obs.Fields{}
		if err != nil {
			fields["error"] = err
		}
		a.log.Auth(ctx, "callback_exchange_failed", fields)
		redirect(w, r, invalidLinkURL)
		return
	}

	a.codec.SetSession(w, s)
	a.codec.ClearVerifier(w)
	ctx = obs.WithUserID(ctx, s.User.ID)

	// Best effort: a missing profile is logged and the user still gets in.
	if ep := hr.ResolveProfile(ctx, a.profiles, s.User.Identity()); !ep.Found() {
		a.log.Warn(ctx, "callback profile missing", obs.Fields{"error": ep.Cause})
	}

	target := a.origin(r) + next
	obs.ObserveCallback("ok")
	a.log.Navigation(ctx, "callback_redirect", guard.CallbackPath, target)
	redirect(w, r, target)
}

// origin is the scheme and host the browser should be sent back to. In
// development it is always the request's own origin, so a forged
// X-Forwarded-Host cannot steer a local redirect. Elsewhere a forwarded host
// from the reverse proxy wins and is assumed to terminate TLS.
func (a *API) origin(r *http.Request) string {
	if a.cfg.Development() {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		return scheme + "://" + r.Host
	}
	if fh := forwardedHost(r); fh != "" {
		return "https://" + fh
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(firstValue(r.Header.Get("X-Forwarded-Proto")), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// publicBase is the origin put into emailed links: the configured override
// when present, otherwise the request origin.
func (a *API) publicBase(r *http.Request) string {
	if u := strings.TrimRight(a.cfg.Backend.RedirectURL, "/"); u != "" {
		return u
	}
	return a.origin(r)
}

func forwardedHost(r *http.Request) string {
	h := firstValue(r.Header.Get("X-Forwarded-Host"))
	if h == "" || strings.ContainsAny(h, "/\\@ \t\r\n") {
		return ""
	}
	return h
}

func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
