package auth

import (
	"strings"
	"time"

	"hrportal.org/internal/hr"
)

// User is the identity held by the session store.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at,omitzero"`
}

// Confirmed reports whether the email address has been verified.
func (u User) Confirmed() bool { return u.EmailConfirmedAt != nil }

// Identity converts u for profile resolution.
func (u User) Identity() hr.Identity {
	return hr.Identity{ID: u.ID, Email: u.Email, Metadata: u.Metadata}
}

// Session is the token pair bound to a user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Valid reports whether s carries both tokens and a user.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && s.User.ID != ""
}

// OTPType names the flow an emailed one-time code belongs to.
type OTPType string

const (
	OTPSignup      OTPType = "signup"
	OTPEmail       OTPType = "email"
	OTPRecovery    OTPType = "recovery"
	OTPEmailChange OTPType = "email_change"
)

// ParseOTPType accepts the known types; anything else maps to OTPSignup.
func ParseOTPType(s string) OTPType {
	switch t := OTPType(strings.ToLower(strings.TrimSpace(s))); t {
	case OTPSignup, OTPEmail, OTPRecovery, OTPEmailChange:
		return t
	default:
		return OTPSignup
	}
}

// SignUpRequest registers a new user.
type SignUpRequest struct {
	Email    string
	Password string
	Metadata map[string]any
	// RedirectTo is the absolute callback URL put into the confirmation email.
	RedirectTo string
	// CodeChallenge is the S256 PKCE challenge; the verifier stays in a cookie.
	CodeChallenge string
}

// SignUpResult carries the created user and, when the store auto-confirms,
// an immediate session.
type SignUpResult struct {
	User    User
	Session *Session
}

// UserAttributes are the mutable fields of a user.
type UserAttributes struct {
	Email    string
	Password string
	Metadata map[string]any
}

// ResendRequest asks for another confirmation email.
type ResendRequest struct {
	Type          OTPType
	Email         string
	RedirectTo    string
	CodeChallenge string
}
