package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshLeeway is how close to expiry an access token is refreshed ahead of time.
const RefreshLeeway = 60 * time.Second

// AccessTokenExpiry reads the exp claim of a JWT without verifying its
// signature. Verification is the session store's job; this only decides
// whether to refresh before asking it.
func AccessTokenExpiry(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// NeedsRefresh reports whether token is expired, about to expire, or
// unreadable at now.
func NeedsRefresh(token string, now time.Time) bool {
	exp, ok := AccessTokenExpiry(token)
	if !ok {
		return true
	}
	return !now.Add(RefreshLeeway).Before(exp)
}
