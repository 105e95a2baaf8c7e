package httpapi

import (
	"net/http"
	"net/url"

	"hrportal.org/internal/auth"
	"hrportal.org/internal/guard"
	"hrportal.org/internal/obs"
)

const configErrorDescription = "Session backend configuration is missing or incomplete. Please check your environment variables."

// configErrorURL is the terminal page shown while the backend settings are
// unusable.
func configErrorURL() string {
	q := url.Values{}
	q.Set("error", guard.ConfigErrCode)
	q.Set("error_description", configErrorDescription)
	return guard.ErrorPath + "?" + q.Encode()
}

// withSession is the session middleware. Order matters: excluded paths pass
// untouched, then the configuration check runs before any store access, then
// the session is refreshed and its cookies written, and only then does the
// guard decide. Cookies written by the refresh survive a guard redirect.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		path := r.URL.Path
		if r.Method == http.MethodOptions || guard.Excluded(path) {
			next.ServeHTTP(w, r)
			return
		}

		if err := a.cfg.CheckBackend(); err != nil {
			obs.ObserveGuardDecision("config_error")
			a.log.Middleware(ctx, "configuration_invalid", path, obs.Fields{"error": err})
			redirect(w, r, configErrorURL())
			return
		}

		access, refresh := a.codec.Tokens(r)
		res := a.refresher.Resolve(ctx, access, refresh)
		a.codec.Apply(w, res)

		d := guard.Decide(res.Authenticated, path)
		if !d.Allowed() {
			obs.ObserveGuardDecision("redirect")
			a.log.Navigation(ctx, "guard_redirect", path, d.Target)
			redirect(w, r, d.Target)
			return
		}
		obs.ObserveGuardDecision("allow")

		if res.Authenticated {
			ctx = auth.ContextWithUser(ctx, res.User)
			ctx = auth.ContextWithToken(ctx, res.AccessToken)
			ctx = obs.WithUserID(ctx, res.User.ID)
		}
		a.log.Middleware(ctx, "request_allowed", path, obs.Fields{"authenticated": res.Authenticated})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser re-applies the guard inside a page loader so a handler never
// depends on the middleware having run. It answers the request itself and
// returns false when the caller must stop.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if d := guard.Decide(ok, r.URL.Path); !d.Allowed() {
		redirect(w, r, d.Target)
		return auth.User{}, false
	}
	if !ok {
		// Allowed without a user: only the root and auth screens get here.
		redirect(w, r, guard.LoginPath)
		return auth.User{}, false
	}
	return u, true
}
