package gotrue

import (
	"encoding/json"
	"net/http"
	"strings"

	"hrportal.org/internal/auth"
)

// errorPayload covers the shapes GoTrue has used across versions.
type errorPayload struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

var codeKinds = map[string]error{
	"invalid_credentials":        auth.ErrInvalidCredentials,
	"email_not_confirmed":        auth.ErrEmailNotConfirmed,
	"user_already_exists":        auth.ErrUserExists,
	"email_exists":               auth.ErrUserExists,
	"weak_password":              auth.ErrInvalidInput,
	"validation_failed":          auth.ErrInvalidInput,
	"email_address_invalid":      auth.ErrInvalidInput,
	"over_request_rate_limit":    auth.ErrRateLimited,
	"over_email_send_rate_limit": auth.ErrRateLimited,
	"bad_jwt":                    auth.ErrInvalidToken,
	"session_not_found":          auth.ErrInvalidToken,
	"session_expired":            auth.ErrInvalidToken,
	"refresh_token_not_found":    auth.ErrInvalidToken,
	"refresh_token_already_used": auth.ErrInvalidToken,
	"otp_expired":                auth.ErrInvalidToken,
	"flow_state_not_found":       auth.ErrInvalidToken,
	"flow_state_expired":         auth.ErrInvalidToken,
	"bad_code_verifier":          auth.ErrInvalidToken,
	"user_not_found":             auth.ErrInvalidToken,
}

func decodeError(status int, body []byte) error {
	var p errorPayload
	_ = json.Unmarshal(body, &p)

	code := p.ErrorCode
	if s, ok := p.Code.(string); ok && code == "" {
		code = s
	}
	msg := firstNonEmpty(p.Msg, p.Message, p.ErrorDescription, p.Error)
	e := &auth.Error{Status: status, Code: code, Message: msg}

	if kind, ok := codeKinds[code]; ok {
		e.Kind = kind
	} else {
		e.Kind = kindForStatus(status, p.Error, msg)
	}
	if e.Message == "" {
		e.Message = auth.Message(e.Kind)
	}
	return e
}

func kindForStatus(status int, errField, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case status >= 500:
		return auth.ErrUnavailable
	case status == http.StatusTooManyRequests:
		return auth.ErrRateLimited
	case strings.Contains(lower, "invalid login credentials"):
		return auth.ErrInvalidCredentials
	case strings.Contains(lower, "email not confirmed"):
		return auth.ErrEmailNotConfirmed
	case strings.Contains(lower, "already registered"):
		return auth.ErrUserExists
	case status == http.StatusUnauthorized, status == http.StatusForbidden, errField == "invalid_grant":
		return auth.ErrInvalidToken
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return auth.ErrInvalidInput
	default:
		return auth.ErrUnavailable
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
