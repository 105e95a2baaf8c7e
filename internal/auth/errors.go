package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrEmailNotConfirmed  = errors.New("auth: email not confirmed")
	ErrUserExists         = errors.New("auth: user already registered")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrRateLimited        = errors.New("auth: rate limited")
	ErrUnavailable        = errors.New("auth: session store unavailable")
	ErrNoSession          = errors.New("auth: no session")
)

// Error is a failure reported by the session store. It unwraps to one of the
// sentinel errors above so callers can branch with errors.Is.
type Error struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.Kind }

// Message returns a user-facing message for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid login credentials"
	case errors.Is(err, ErrEmailNotConfirmed):
		return "Email not confirmed"
	case errors.Is(err, ErrUserExists):
		return "User already registered"
	case errors.Is(err, ErrInvalidToken):
		return "Token has expired or is invalid"
	case errors.Is(err, ErrRateLimited):
		return "Too many requests, please try again later"
	case errors.Is(err, ErrUnavailable):
		return "Authentication service is unavailable"
	default:
		return "An unexpected error occurred"
	}
}
