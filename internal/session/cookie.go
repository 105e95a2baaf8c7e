// Package session carries the auth session between the browser and the
// session store: cookie encoding plus the per-request token refresh.
package session

import (
	"net/http"
	"strings"
	"time"

	"hrportal.org/internal/auth"
)

const (
	AccessCookie   = "hr-access-token"
	RefreshCookie  = "hr-refresh-token"
	VerifierCookie = "hr-code-verifier"

	RefreshCookieTTL  = 30 * 24 * time.Hour
	VerifierCookieTTL = 10 * time.Minute
)

// Codec reads and writes the session cookies.
type Codec struct {
	Secure bool
	Domain string
	now    func() time.Time
}

// NewCodec returns a codec with the given cookie attributes.
func NewCodec(secure bool, domain string) Codec {
	return Codec{Secure: secure, Domain: domain, now: time.Now}
}

func (c Codec) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Tokens returns the access and refresh tokens carried by r. A bearer
// Authorization header takes precedence over the access cookie.
func (c Codec) Tokens(r *http.Request) (access, refresh string) {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		access = tok
	} else if ck, err := r.Cookie(AccessCookie); err == nil {
		access = ck.Value
	}
	if ck, err := r.Cookie(RefreshCookie); err == nil {
		refresh = ck.Value
	}
	return access, refresh
}

// SetSession writes both token cookies.
func (c Codec) SetSession(w http.ResponseWriter, s auth.Session) {
	accessAge := RefreshCookieTTL
	if !s.ExpiresAt.IsZero() {
		// Keep the access cookie until the refresh cookie would go too, so an
		// expired token still reaches the refresh path.
		if d := s.ExpiresAt.Sub(c.clock()); d > accessAge {
			accessAge = d
		}
	}
	http.SetCookie(w, c.cookie(AccessCookie, s.AccessToken, accessAge))
	http.SetCookie(w, c.cookie(RefreshCookie, s.RefreshToken, RefreshCookieTTL))
}

// Clear expires both token cookies.
func (c Codec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.expired(AccessCookie))
	http.SetCookie(w, c.expired(RefreshCookie))
}

// SetVerifier stores a PKCE code verifier for the callback.
func (c Codec) SetVerifier(w http.ResponseWriter, verifier string) {
	http.SetCookie(w, c.cookie(VerifierCookie, verifier, VerifierCookieTTL))
}

// Verifier returns the stored PKCE code verifier, if any.
func (c Codec) Verifier(r *http.Request) string {
	if ck, err := r.Cookie(VerifierCookie); err == nil {
		return ck.Value
	}
	return ""
}

// ClearVerifier expires the PKCE cookie.
func (c Codec) ClearVerifier(w http.ResponseWriter) {
	http.SetCookie(w, c.expired(VerifierCookie))
}

// Apply writes whatever cookie changes res requires.
func (c Codec) Apply(w http.ResponseWriter, res Result) {
	switch {
	case res.Refreshed != nil:
		c.SetSession(w, *res.Refreshed)
	case res.Clear:
		c.Clear(w)
	}
}

func (c Codec) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c Codec) expired(name string) *http.Cookie {
	ck := c.cookie(name, "", 0)
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	return ck
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
