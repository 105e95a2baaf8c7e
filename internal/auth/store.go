package auth

import "context"

// SessionStore is the external identity service. Every call either returns
// a usable value or an error unwrapping to one of the package sentinels;
// transport failures and timeouts surface as ErrUnavailable.
type SessionStore interface {
	// GetUser validates accessToken with the store and returns its owner.
	GetUser(ctx context.Context, accessToken string) (User, error)
	// RefreshSession rotates refreshToken into a new session.
	RefreshSession(ctx context.Context, refreshToken string) (Session, error)
	// ExchangeCodeForSession trades a one-time auth code plus its PKCE
	// verifier for a session.
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, req SignUpRequest) (SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	VerifyOTP(ctx context.Context, email, token string, typ OTPType) (Session, error)
	Resend(ctx context.Context, req ResendRequest) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (User, error)
}
