// Package gotrue implements auth.SessionStore against a GoTrue (Supabase
// Auth) REST endpoint.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"hrportal.org/internal/auth"
)

const (
	basePath       = "/auth/v1"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client talks to GoTrue using the project's anon key.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTracer sets the tracer used for outgoing calls.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New returns a client for the project at projectURL.
func New(projectURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(projectURL, "/") + basePath,
		anonKey: anonKey,
		http:    &http.Client{Timeout: defaultTimeout},
		tracer:  otel.Tracer("hrportal.org/internal/auth/gotrue"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ auth.SessionStore = (*Client)(nil)

type sessionPayload struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         *auth.User `json:"user"`
}

func (c *Client) toSession(p sessionPayload) (auth.Session, error) {
	if p.AccessToken == "" || p.User == nil {
		return auth.Session{}, &auth.Error{Status: http.StatusBadGateway, Message: "Authentication service returned no session", Kind: auth.ErrUnavailable}
	}
	s := auth.Session{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, User: *p.User}
	switch {
	case p.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(p.ExpiresAt, 0)
	case p.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(p.ExpiresIn) * time.Second)
	default:
		if exp, ok := auth.AccessTokenExpiry(p.AccessToken); ok {
			s.ExpiresAt = exp
		}
	}
	return s, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (auth.User, error) {
	if accessToken == "" {
		return auth.User{}, auth.ErrNoSession
	}
	var u auth.User
	if err := c.do(ctx, "get_user", http.MethodGet, "/user", nil, accessToken, nil, &u); err != nil {
		return auth.User{}, err
	}
	if u.ID == "" {
		return auth.User{}, &auth.Error{Status: http.StatusUnauthorized, Message: "Token has expired or is invalid", Kind: auth.ErrInvalidToken}
	}
	return u, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (auth.Session, error) {
	if refreshToken == "" {
		return auth.Session{}, auth.ErrNoSession
	}
	return c.token(ctx, "refresh", "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (auth.Session, error) {
	if code == "" {
		return auth.Session{}, &auth.Error{Status: http.StatusBadRequest, Message: "Missing auth code", Kind: auth.ErrInvalidToken}
	}
	return c.token(ctx, "exchange_code", "pkce", map[string]string{"auth_code": code, "code_verifier": codeVerifier})
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (auth.Session, error) {
	return c.token(ctx, "sign_in", "password", map[string]string{"email": email, "password": password})
}

func (c *Client) token(ctx context.Context, op, grant string, body map[string]string) (auth.Session, error) {
	var p sessionPayload
	q := url.Values{"grant_type": {grant}}
	if err := c.do(ctx, op, http.MethodPost, "/token", q, "", body, &p); err != nil {
		return auth.Session{}, err
	}
	return c.toSession(p)
}

type signUpBody struct {
	Email               string         `json:"email"`
	Password            string         `json:"password"`
	Data                map[string]any `json:"data,omitempty"`
	CodeChallenge       string         `json:"code_challenge,omitempty"`
	CodeChallengeMethod string         `json:"code_challenge_method,omitempty"`
}

func (c *Client) SignUp(ctx context.Context, req auth.SignUpRequest) (auth.SignUpResult, error) {
	body := signUpBody{Email: req.Email, Password: req.Password, Data: req.Metadata}
	if req.CodeChallenge != "" {
		body.CodeChallenge = req.CodeChallenge
		body.CodeChallengeMethod = strings.ToLower(auth.PKCEMethod)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "sign_up", http.MethodPost, "/signup", redirectQuery(req.RedirectTo), "", body, &raw); err != nil {
		return auth.SignUpResult{}, err
	}
	// With autoconfirm the response is a session, otherwise the bare user.
	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err == nil && p.AccessToken != "" {
		s, err := c.toSession(p)
		if err != nil {
			return auth.SignUpResult{}, err
		}
		return auth.SignUpResult{User: s.User, Session: &s}, nil
	}
	var u auth.User
	if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" {
		return auth.SignUpResult{}, &auth.Error{Status: http.StatusBadGateway, Message: "Authentication service returned no user", Kind: auth.ErrUnavailable}
	}
	return auth.SignUpResult{User: u}, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	err := c.do(ctx, "sign_out", http.MethodPost, "/logout", nil, accessToken, nil, nil)
	// An already-dead token means the session is gone, which is the goal.
	if errors.Is(err, auth.ErrInvalidToken) {
		return nil
	}
	return err
}

func (c *Client) VerifyOTP(ctx context.Context, email, token string, typ auth.OTPType) (auth.Session, error) {
	body := map[string]string{"email": email, "token": token, "type": string(typ)}
	var p sessionPayload
	if err := c.do(ctx, "verify_otp", http.MethodPost, "/verify", nil, "", body, &p); err != nil {
		return auth.Session{}, err
	}
	return c.toSession(p)
}

func (c *Client) Resend(ctx context.Context, req auth.ResendRequest) error {
	body := map[string]string{"email": req.Email, "type": string(req.Type)}
	if req.CodeChallenge != "" {
		body["code_challenge"] = req.CodeChallenge
		body["code_challenge_method"] = strings.ToLower(auth.PKCEMethod)
	}
	return c.do(ctx, "resend", http.MethodPost, "/resend", redirectQuery(req.RedirectTo), "", body, nil)
}

type userBody struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs auth.UserAttributes) (auth.User, error) {
	if accessToken == "" {
		return auth.User{}, auth.ErrNoSession
	}
	var u auth.User
	body := userBody{Email: attrs.Email, Password: attrs.Password, Data: attrs.Metadata}
	if err := c.do(ctx, "update_user", http.MethodPut, "/user", nil, accessToken, body, &u); err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func redirectQuery(to string) url.Values {
	if to == "" {
		return nil
	}
	return url.Values{"redirect_to": {to}}
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, bearer string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "gotrue."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("gotrue.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gotrue %s: encode: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("gotrue %s: %w", op, err)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", auth.ErrUnavailable, op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", auth.ErrUnavailable, op, err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", auth.ErrUnavailable, op, err)
	}
	return nil
}
