package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"hrportal.org/internal/audit"
	"hrportal.org/internal/auth"
	"hrportal.org/internal/guard"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/obs"
)

const expiredLinkMessage = "Your email confirmation link has expired. Please request a new one below."

type authPage struct {
	Page      string `json:"page"`
	Email     string `json:"email,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.loginPage(w, r)
	case http.MethodPost:
		a.signIn(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) loginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := authPage{Page: "login", ErrorCode: q.Get("error_code")}
	if urlErr := q.Get("error"); urlErr != "" {
		switch {
		case page.ErrorCode == "otp_expired", urlErr == "otp_expired":
			page.ErrorCode = "otp_expired"
			page.Error = expiredLinkMessage
		case q.Get("error_description") != "":
			page.Error = q.Get("error_description")
		default:
			page.Error = urlErr
		}
		a.log.Auth(r.Context(), "login_page_error_displayed", obs.Fields{"error": urlErr, "error_code": page.ErrorCode})
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.readForm(w, r, &req) {
		return
	}
	ctx := r.Context()
	email := normalizeEmail(req.Email)
	a.log.Auth(ctx, "login_attempt", obs.Fields{"email": email})

	s, err := a.store.SignInWithPassword(ctx, email, req.Password)
	if err != nil {
		a.log.Auth(ctx, "login_failure", obs.Fields{"email": email, "error": err})
		a.record(ctx, audit.EventSignInFailed, map[string]any{"email": email, "reason": auth.Message(err)})
		a.authError(w, r, err)
		return
	}

	a.codec.SetSession(w, s)
	ctx = obs.WithUserID(ctx, s.User.ID)
	a.log.Auth(ctx, "login_success", obs.Fields{"email": email})
	a.record(ctx, audit.EventSignIn, map[string]any{"email": email})
	writeJSON(w, http.StatusOK, actionResponse{Redirect: guard.LandingPath})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		writeJSON(w, http.StatusOK, authPage{Page: "register"})
	case http.MethodPost:
		a.register(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.readForm(w, r, &req) {
		return
	}
	ctx := r.Context()
	email := normalizeEmail(req.Email)

	verifier, err := auth.NewCodeVerifier()
	if err != nil {
		a.log.Exception(ctx, err, "Authentication", "code_verifier", nil)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	redirectTo := a.publicBase(r) + guard.CallbackPath
	a.log.Auth(ctx, "registration_attempt", obs.Fields{"email": email, "redirect_to": redirectTo})

	res, err := a.store.SignUp(ctx, auth.SignUpRequest{
		Email:    email,
		Password: req.Password,
		Metadata: map[string]any{
			"first_name": strings.TrimSpace(req.FirstName),
			"last_name":  strings.TrimSpace(req.LastName),
			"department": strings.TrimSpace(req.Department),
			"position":   strings.TrimSpace(req.Position),
		},
		RedirectTo:    redirectTo,
		CodeChallenge: auth.CodeChallenge(verifier),
	})
	if err != nil {
		a.log.Auth(ctx, "registration_failure", obs.Fields{"email": email, "error": err})
		a.authError(w, r, err)
		return
	}

	ctx = obs.WithUserID(ctx, res.User.ID)
	a.mirrorProfile(ctx, res.User, req)
	a.record(ctx, audit.EventRegister, map[string]any{"email": email, "confirmed": res.User.Confirmed()})

	if res.Session != nil && res.Session.Valid() {
		a.codec.SetSession(w, *res.Session)
		a.log.Auth(ctx, "registration_success", obs.Fields{"email": email, "confirmed": true})
		writeJSON(w, http.StatusCreated, actionResponse{Redirect: guard.LandingPath})
		return
	}

	a.codec.SetVerifier(w, verifier)
	a.log.Auth(ctx, "registration_success", obs.Fields{"email": email, "confirmed": false})
	writeJSON(w, http.StatusCreated, actionResponse{
		Redirect: guard.VerifyPath + "?email=" + url.QueryEscape(email),
		Message:  "Check your email for a confirmation link or code.",
	})
}

// mirrorProfile creates the directory row for a new user. It never fails the
// registration: the dashboard synthesizes a profile when the row is absent.
func (a *API) mirrorProfile(ctx context.Context, u auth.User, req registerRequest) {
	if a.profiles == nil || u.ID == "" {
		return
	}
	p := hr.Profile{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		Department: strings.TrimSpace(req.Department),
		Position:   strings.TrimSpace(req.Position),
		Role:       hr.RoleEmployee,
		Status:     hr.StatusActive,
		HireDate:   a.now().UTC(),
	}
	if p.Email == "" {
		p.Email = normalizeEmail(req.Email)
	}
	if err := a.profiles.CreateProfile(ctx, p); err != nil {
		a.log.Warn(ctx, "profile mirror failed", obs.Fields{"error": err})
	}
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.verifyPage(w, r)
	case http.MethodPost:
		a.verify(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) verifyPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := authPage{Page: "verify", Email: q.Get("email"), ErrorCode: q.Get("error")}
	switch page.ErrorCode {
	case "":
	case "invalid_link":
		page.Error = "The confirmation link is invalid or has expired. Enter the code from the email or request a new one."
	default:
		page.Error = "Email confirmation failed. Please try again."
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !a.readForm(w, r, &req) {
		return
	}
	ctx := r.Context()
	email := normalizeEmail(req.Email)

	s, err := a.store.VerifyOTP(ctx, email, req.Token, auth.OTPSignup)
	if err != nil {
		a.log.Auth(ctx, "verify_failure", obs.Fields{"email": email, "error": err})
		a.authError(w, r, err)
		return
	}
	ctx = obs.WithUserID(ctx, s.User.ID)
	a.record(ctx, audit.EventEmailConfirmed, map[string]any{"email": email})
	if !s.Valid() {
		writeJSON(w, http.StatusOK, actionResponse{Redirect: guard.LoginPath, Message: "Email confirmed. Please sign in."})
		return
	}
	a.codec.SetSession(w, s)
	a.codec.ClearVerifier(w)
	a.log.Auth(ctx, "verify_success", obs.Fields{"email": email})
	writeJSON(w, http.StatusOK, actionResponse{Redirect: guard.LandingPath})
}

func (a *API) handleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resendRequest
	if !a.readForm(w, r, &req) {
		return
	}
	ctx := r.Context()
	email := normalizeEmail(req.Email)

	verifier, err := auth.NewCodeVerifier()
	if err != nil {
		a.log.Exception(ctx, err, "Authentication", "code_verifier", nil)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	err = a.store.Resend(ctx, auth.ResendRequest{
		Type:          auth.ParseOTPType(req.Type),
		Email:         email,
		RedirectTo:    a.publicBase(r) + guard.CallbackPath,
		CodeChallenge: auth.CodeChallenge(verifier),
	})
	if err != nil {
		a.log.Auth(ctx, "resend_confirmation_failure", obs.Fields{"email": email, "error": err})
		a.authError(w, r, err)
		return
	}
	a.codec.SetVerifier(w, verifier)
	a.log.Auth(ctx, "resend_confirmation_success", obs.Fields{"email": email})
	writeJSON(w, http.StatusOK, actionResponse{Message: "Confirmation email sent. Please check your inbox."})
}

func (a *API) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, authPage{Page: "check-email", Email: r.URL.Query().Get("email")})
}

// handleLogout signs out with the store on a best-effort basis; the cookies
// are cleared whatever the store says.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ctx := r.Context()
	if token, ok := auth.TokenFromContext(ctx); ok {
		if err := a.store.SignOut(ctx, token); err != nil {
			a.log.Warn(ctx, "sign out failed", obs.Fields{"error": err})
		}
	}
	a.codec.Clear(w)
	a.codec.ClearVerifier(w)
	a.record(ctx, audit.EventSignOut, nil)
	a.log.Auth(ctx, "logout", nil)
	writeJSON(w, http.StatusOK, actionResponse{Redirect: guard.LoginPath})
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.currentUser(w, r); !ok {
		return
	}
	var req passwordRequest
	if !a.readForm(w, r, &req) {
		return
	}
	ctx := r.Context()
	token, _ := auth.TokenFromContext(ctx)
	if _, err := a.store.UpdateUser(ctx, token, auth.UserAttributes{Password: req.Password}); err != nil {
		a.log.Auth(ctx, "password_update_failure", obs.Fields{"error": err})
		a.authError(w, r, err)
		return
	}
	a.record(ctx, audit.EventPasswordChanged, nil)
	a.log.Auth(ctx, "password_updated", nil)
	writeJSON(w, http.StatusOK, actionResponse{Message: "Password updated."})
}
