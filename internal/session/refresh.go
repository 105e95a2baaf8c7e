package session

import (
	"context"
	"errors"
	"time"

	"hrportal.org/internal/auth"
	"hrportal.org/internal/obs"
)

// Result is the outcome of resolving a request's session.
type Result struct {
	User          auth.User
	Authenticated bool
	// AccessToken is the token valid after resolution.
	AccessToken string
	// Refreshed is set when new cookies must be written.
	Refreshed *auth.Session
	// Clear is set when the store rejected the tokens outright.
	Clear bool
	// Err holds a transport failure; the request continues unauthenticated
	// and the cookies are kept for the next attempt.
	Err error
}

// Refresher validates session tokens against the store, refreshing them when
// the access token is missing, close to expiry, or rejected.
type Refresher struct {
	store auth.SessionStore
	log   *obs.Logger
	now   func() time.Time
}

// NewRefresher returns a refresher over store.
func NewRefresher(store auth.SessionStore, log *obs.Logger) *Refresher {
	return &Refresher{store: store, log: log, now: time.Now}
}

// Resolve never fails; every problem is folded into the Result. Cookies are
// cleared only when the store rejects the tokens or the access token has
// expired with nothing to refresh it.
func (r *Refresher) Resolve(ctx context.Context, access, refresh string) Result {
	if access == "" && refresh == "" {
		return Result{}
	}
	if access != "" && !auth.NeedsRefresh(access, r.now()) {
		res, refused := r.lookup(ctx, access)
		if !refused {
			return res
		}
		if refresh == "" {
			return Result{Clear: true}
		}
		return r.refresh(ctx, refresh)
	}

	// The access token is missing, unreadable or close to expiry.
	live := r.unexpired(access)
	if refresh == "" {
		if live {
			if res, refused := r.lookup(ctx, access); !refused {
				return res
			}
		}
		return Result{Clear: true}
	}
	res := r.refresh(ctx, refresh)
	if res.Err != nil && live {
		// Refresh is unreachable but the access token still has time left.
		if fallback, refused := r.lookup(ctx, access); !refused && fallback.Authenticated {
			return fallback
		}
	}
	return res
}

// lookup asks the store who owns access. refused is set when the store
// rejected the token; a transport failure comes back in Result.Err.
func (r *Refresher) lookup(ctx context.Context, access string) (res Result, refused bool) {
	u, err := r.store.GetUser(ctx, access)
	if err == nil {
		return Result{User: u, Authenticated: true, AccessToken: access}, false
	}
	if !rejected(err) {
		r.log.Warn(ctx, "session lookup failed", obs.Fields{"error": err})
		return Result{Err: err}, false
	}
	r.log.Auth(ctx, "access_token_rejected", obs.Fields{"error": err})
	return Result{}, true
}

func (r *Refresher) unexpired(access string) bool {
	exp, ok := auth.AccessTokenExpiry(access)
	return ok && r.now().Before(exp)
}

func (r *Refresher) refresh(ctx context.Context, refresh string) Result {
	s, err := r.store.RefreshSession(ctx, refresh)
	switch {
	case err == nil:
		obs.ObserveSessionRefresh("ok")
		r.log.Auth(ctx, "session_refreshed", obs.Fields{"user_id": s.User.ID})
		return Result{User: s.User, Authenticated: true, AccessToken: s.AccessToken, Refreshed: &s}
	case rejected(err):
		obs.ObserveSessionRefresh("rejected")
		r.log.Auth(ctx, "session_refresh_rejected", obs.Fields{"error": err})
		return Result{Clear: true}
	default:
		obs.ObserveSessionRefresh("error")
		r.log.Warn(ctx, "session refresh failed", obs.Fields{"error": err})
		return Result{Err: err}
	}
}

// rejected reports whether err is the store refusing the token, as opposed
// to the store being unreachable.
func rejected(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrNoSession) ||
		errors.Is(err, auth.ErrInvalidCredentials) ||
		errors.Is(err, auth.ErrInvalidInput)
}
