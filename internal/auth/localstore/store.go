// Package localstore is an in-process auth.SessionStore for local development
// and tests. It keeps users and sessions in memory, signs access tokens with
// HS256 and rotates refresh tokens on every use.
package localstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrportal.org/internal/auth"
	"hrportal.org/internal/ids"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultCodeTTL    = 10 * time.Minute
	defaultOTPTTL     = time.Hour
)

type user struct {
	auth.User
	passwordHash string
}

type refreshRecord struct {
	userID    string
	sessionID string
	hash      string
	expiresAt time.Time
}

type codeRecord struct {
	userID    string
	challenge string
	expiresAt time.Time
}

type otpRecord struct {
	hash      string
	typ       auth.OTPType
	expiresAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	autoConfirm bool
	mailer      Mailer
	now         func() time.Time

	mu       sync.Mutex
	users    map[string]*user
	byEmail  map[string]string
	sessions map[string]string // session id -> user id
	refresh  map[string]refreshRecord
	codes    map[string]codeRecord
	otps     map[string]otpRecord // email -> pending code
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAccessTTL sets the lifetime of access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithAutoConfirm makes sign-up return an immediate session.
func WithAutoConfirm(v bool) Option {
	return func(s *Store) { s.autoConfirm = v }
}

// WithMailer sets where confirmation messages go.
func WithMailer(m Mailer) Option {
	return func(s *Store) {
		if m != nil {
			s.mailer = m
		}
	}
}

// New returns an empty store signing tokens with secret.
func New(secret string, opts ...Option) (*Store, error) {
	if len(secret) < 8 {
		return nil, fmt.Errorf("localstore: secret must be at least 8 bytes")
	}
	s := &Store{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		mailer:     discardMailer{},
		now:        time.Now,
		users:      make(map[string]*user),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]string),
		refresh:    make(map[string]refreshRecord),
		codes:      make(map[string]codeRecord),
		otps:       make(map[string]otpRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ auth.SessionStore = (*Store)(nil)

func fail(status int, code string, kind error) error {
	return &auth.Error{Status: status, Code: code, Message: auth.Message(kind), Kind: kind}
}

var (
	errBadToken    = func() error { return fail(http.StatusUnauthorized, "bad_jwt", auth.ErrInvalidToken) }
	errBadRefresh  = func() error { return fail(http.StatusBadRequest, "refresh_token_not_found", auth.ErrInvalidToken) }
	errBadCode     = func() error { return fail(http.StatusNotFound, "flow_state_not_found", auth.ErrInvalidToken) }
	errBadLogin    = func() error { return fail(http.StatusBadRequest, "invalid_credentials", auth.ErrInvalidCredentials) }
	errOTPExpired  = func() error { return fail(http.StatusForbidden, "otp_expired", auth.ErrInvalidToken) }
	errUnconfirmed = func() error { return fail(http.StatusBadRequest, "email_not_confirmed", auth.ErrEmailNotConfirmed) }
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) GetUser(ctx context.Context, accessToken string) (auth.User, error) {
	if accessToken == "" {
		return auth.User{}, auth.ErrNoSession
	}
	claims, err := s.parseAccess(accessToken)
	if err != nil {
		return auth.User{}, errBadToken()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.sessions[claims.SessionID]; !ok || owner != claims.Subject {
		return auth.User{}, fail(http.StatusForbidden, "session_not_found", auth.ErrInvalidToken)
	}
	u, ok := s.users[claims.Subject]
	if !ok {
		return auth.User{}, fail(http.StatusForbidden, "user_not_found", auth.ErrInvalidToken)
	}
	return u.User, nil
}

func (s *Store) RefreshSession(ctx context.Context, refreshToken string) (auth.Session, error) {
	if refreshToken == "" {
		return auth.Session{}, auth.ErrNoSession
	}
	id, secret, ok := strings.Cut(refreshToken, ".")
	if !ok || id == "" || secret == "" {
		return auth.Session{}, errBadRefresh()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[id]
	if !ok || subtle.ConstantTimeCompare([]byte(rec.hash), []byte(digest(secret))) != 1 {
		return auth.Session{}, errBadRefresh()
	}
	delete(s.refresh, id)
	if !s.now().Before(rec.expiresAt) {
		return auth.Session{}, errBadRefresh()
	}
	if _, live := s.sessions[rec.sessionID]; !live {
		return auth.Session{}, errBadRefresh()
	}
	u, ok := s.users[rec.userID]
	if !ok {
		return auth.Session{}, errBadRefresh()
	}
	return s.issueLocked(u, rec.sessionID)
}

func (s *Store) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.codes[code]
	if !ok {
		return auth.Session{}, errBadCode()
	}
	// Codes are single use even when the exchange fails.
	delete(s.codes, code)
	if !s.now().Before(rec.expiresAt) {
		return auth.Session{}, fail(http.StatusNotFound, "flow_state_expired", auth.ErrInvalidToken)
	}
	if rec.challenge != "" && !auth.VerifyCodeChallenge(rec.challenge, codeVerifier) {
		return auth.Session{}, fail(http.StatusForbidden, "bad_code_verifier", auth.ErrInvalidToken)
	}
	u, ok := s.users[rec.userID]
	if !ok {
		return auth.Session{}, errBadCode()
	}
	s.confirmLocked(u)
	return s.issueLocked(u, "")
}

func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return auth.Session{}, errBadLogin()
	}
	u := s.users[id]
	if err := auth.VerifyPassword(u.passwordHash, password); err != nil {
		return auth.Session{}, errBadLogin()
	}
	if !u.Confirmed() {
		return auth.Session{}, errUnconfirmed()
	}
	return s.issueLocked(u, "")
}

func (s *Store) SignUp(ctx context.Context, req auth.SignUpRequest) (auth.SignUpResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return auth.SignUpResult{}, fail(http.StatusBadRequest, "email_address_invalid", auth.ErrInvalidInput)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return auth.SignUpResult{}, &auth.Error{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "), Kind: auth.ErrInvalidInput}
	}

	s.mu.Lock()
	if _, exists := s.byEmail[email]; exists {
		s.mu.Unlock()
		return auth.SignUpResult{}, fail(http.StatusUnprocessableEntity, "user_already_exists", auth.ErrUserExists)
	}
	u := &user{
		User: auth.User{
			ID:        uuid.NewString(),
			Email:     email,
			Metadata:  copyMetadata(req.Metadata),
			CreatedAt: s.now().UTC(),
		},
		passwordHash: hash,
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID

	if s.autoConfirm {
		s.confirmLocked(u)
		sess, err := s.issueLocked(u, "")
		s.mu.Unlock()
		if err != nil {
			return auth.SignUpResult{}, err
		}
		return auth.SignUpResult{User: sess.User, Session: &sess}, nil
	}
	msg, err := s.pendingLocked(u, auth.OTPSignup, req.RedirectTo, req.CodeChallenge)
	created := u.User
	s.mu.Unlock()
	if err != nil {
		return auth.SignUpResult{}, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return auth.SignUpResult{}, fmt.Errorf("%w: send confirmation: %v", auth.ErrUnavailable, err)
	}
	return auth.SignUpResult{User: created}, nil
}

func (s *Store) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	claims, err := s.parseAccess(accessToken)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, claims.SessionID)
	for id, rec := range s.refresh {
		if rec.sessionID == claims.SessionID {
			delete(s.refresh, id)
		}
	}
	return nil
}

func (s *Store) VerifyOTP(ctx context.Context, email, token string, typ auth.OTPType) (auth.Session, error) {
	email = normalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.otps[email]
	if !ok || rec.typ != typ || subtle.ConstantTimeCompare([]byte(rec.hash), []byte(digest(strings.TrimSpace(token)))) != 1 {
		return auth.Session{}, errOTPExpired()
	}
	delete(s.otps, email)
	if !s.now().Before(rec.expiresAt) {
		return auth.Session{}, errOTPExpired()
	}
	u, ok := s.users[s.byEmail[email]]
	if !ok {
		return auth.Session{}, errOTPExpired()
	}
	s.confirmLocked(u)
	return s.issueLocked(u, "")
}

func (s *Store) Resend(ctx context.Context, req auth.ResendRequest) error {
	email := normalizeEmail(req.Email)
	s.mu.Lock()
	u, ok := s.users[s.byEmail[email]]
	if !ok || (req.Type == auth.OTPSignup && u.Confirmed()) {
		// Unknown or already confirmed addresses are not disclosed.
		s.mu.Unlock()
		return nil
	}
	msg, err := s.pendingLocked(u, req.Type, req.RedirectTo, req.CodeChallenge)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: send confirmation: %v", auth.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, accessToken string, attrs auth.UserAttributes) (auth.User, error) {
	current, err := s.GetUser(ctx, accessToken)
	if err != nil {
		return auth.User{}, err
	}
	var hash string
	if attrs.Password != "" {
		if hash, err = auth.HashPassword(attrs.Password); err != nil {
			return auth.User{}, &auth.Error{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "), Kind: auth.ErrInvalidInput}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[current.ID]
	if !ok {
		return auth.User{}, errBadToken()
	}
	if email := normalizeEmail(attrs.Email); email != "" && email != u.Email {
		if _, taken := s.byEmail[email]; taken {
			return auth.User{}, fail(http.StatusUnprocessableEntity, "email_exists", auth.ErrUserExists)
		}
		delete(s.byEmail, u.Email)
		u.Email = email
		s.byEmail[email] = u.ID
	}
	if hash != "" {
		u.passwordHash = hash
	}
	if len(attrs.Metadata) > 0 {
		if u.Metadata == nil {
			u.Metadata = make(map[string]any, len(attrs.Metadata))
		}
		for k, v := range attrs.Metadata {
			u.Metadata[k] = v
		}
	}
	return u.User, nil
}

func (s *Store) confirmLocked(u *user) {
	if u.EmailConfirmedAt == nil {
		t := s.now().UTC()
		u.EmailConfirmedAt = &t
	}
}

// issueLocked mints a token pair. An empty sessionID starts a new session.
func (s *Store) issueLocked(u *user, sessionID string) (auth.Session, error) {
	now := s.now()
	if sessionID == "" {
		sessionID = uuid.NewString()
		s.sessions[sessionID] = u.ID
	}
	expiresAt := now.Add(s.accessTTL)
	access, err := s.signAccess(u.User, sessionID, now, expiresAt)
	if err != nil {
		return auth.Session{}, fmt.Errorf("localstore: sign access token: %w", err)
	}
	secret, err := randomHex(24)
	if err != nil {
		return auth.Session{}, fmt.Errorf("localstore: refresh token: %w", err)
	}
	id := ids.New()
	s.refresh[id] = refreshRecord{
		userID:    u.ID,
		sessionID: sessionID,
		hash:      digest(secret),
		expiresAt: now.Add(s.refreshTTL),
	}
	return auth.Session{
		AccessToken:  access,
		RefreshToken: id + "." + secret,
		ExpiresAt:    expiresAt.Truncate(time.Second),
		User:         u.User,
	}, nil
}

// pendingLocked records a fresh OTP (and auth code when a PKCE challenge is
// given) and returns the message carrying them.
func (s *Store) pendingLocked(u *user, typ auth.OTPType, redirectTo, challenge string) (Message, error) {
	now := s.now()
	otp, err := randomDigits(6)
	if err != nil {
		return Message{}, fmt.Errorf("localstore: otp: %w", err)
	}
	s.otps[u.Email] = otpRecord{hash: digest(otp), typ: typ, expiresAt: now.Add(defaultOTPTTL)}

	msg := Message{To: u.Email, Type: typ, OTP: otp}
	if redirectTo != "" {
		code := uuid.NewString()
		s.codes[code] = codeRecord{userID: u.ID, challenge: challenge, expiresAt: now.Add(defaultCodeTTL)}
		link, err := withQuery(redirectTo, "code", code)
		if err != nil {
			return Message{}, fail(http.StatusBadRequest, "validation_failed", auth.ErrInvalidInput)
		}
		msg.Link = link
	}
	return msg, nil
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for range n {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
