package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hrportal.org/internal/auth"
	"hrportal.org/internal/config"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/session"
)

// fakeStore is a scriptable session store. Unset hooks fail the test, so a
// test proves a call did not happen simply by not setting it.
type fakeStore struct {
	t *testing.T

	mu    sync.Mutex
	calls []string

	getUser   func(token string) (auth.User, error)
	refresh   func(token string) (auth.Session, error)
	exchange  func(code, verifier string) (auth.Session, error)
	signIn    func(email, password string) (auth.Session, error)
	signUp    func(req auth.SignUpRequest) (auth.SignUpResult, error)
	signOut   func(token string) error
	verifyOTP func(email, token string, typ auth.OTPType) (auth.Session, error)
	resend    func(req auth.ResendRequest) error
	update    func(token string, attrs auth.UserAttributes) (auth.User, error)
}

var _ auth.SessionStore = (*fakeStore)(nil)

func (f *fakeStore) called(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeStore) unexpected(name string) {
	f.t.Helper()
	f.t.Errorf("unexpected session store call: %s", name)
}

func (f *fakeStore) GetUser(_ context.Context, token string) (auth.User, error) {
	f.called("GetUser")
	if f.getUser == nil {
		f.unexpected("GetUser")
		return auth.User{}, auth.ErrInvalidToken
	}
	return f.getUser(token)
}

func (f *fakeStore) RefreshSession(_ context.Context, token string) (auth.Session, error) {
	f.called("RefreshSession")
	if f.refresh == nil {
		f.unexpected("RefreshSession")
		return auth.Session{}, auth.ErrInvalidToken
	}
	return f.refresh(token)
}

func (f *fakeStore) ExchangeCodeForSession(_ context.Context, code, verifier string) (auth.Session, error) {
	f.called("ExchangeCodeForSession")
	if f.exchange == nil {
		f.unexpected("ExchangeCodeForSession")
		return auth.Session{}, auth.ErrInvalidToken
	}
	return f.exchange(code, verifier)
}

func (f *fakeStore) SignInWithPassword(_ context.Context, email, password string) (auth.Session, error) {
	f.called("SignInWithPassword")
	if f.signIn == nil {
		f.unexpected("SignInWithPassword")
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	return f.signIn(email, password)
}

func (f *fakeStore) SignUp(_ context.Context, req auth.SignUpRequest) (auth.SignUpResult, error) {
	f.called("SignUp")
	if f.signUp == nil {
		f.unexpected("SignUp")
		return auth.SignUpResult{}, auth.ErrInvalidInput
	}
	return f.signUp(req)
}

func (f *fakeStore) SignOut(_ context.Context, token string) error {
	f.called("SignOut")
	if f.signOut == nil {
		return nil
	}
	return f.signOut(token)
}

func (f *fakeStore) VerifyOTP(_ context.Context, email, token string, typ auth.OTPType) (auth.Session, error) {
	f.called("VerifyOTP")
	if f.verifyOTP == nil {
		f.unexpected("VerifyOTP")
		return auth.Session{}, auth.ErrInvalidToken
	}
	return f.verifyOTP(email, token, typ)
}

func (f *fakeStore) Resend(_ context.Context, req auth.ResendRequest) error {
	f.called("Resend")
	if f.resend == nil {
		f.unexpected("Resend")
		return auth.ErrInvalidInput
	}
	return f.resend(req)
}

func (f *fakeStore) UpdateUser(_ context.Context, token string, attrs auth.UserAttributes) (auth.User, error) {
	f.called("UpdateUser")
	if f.update == nil {
		f.unexpected("UpdateUser")
		return auth.User{}, auth.ErrInvalidToken
	}
	return f.update(token, attrs)
}

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]hr.Profile
	findErr   error
	listErr   error
	list      []hr.Profile
	queries   []hr.Query
	counts    [][]hr.Filter
	created   []hr.Profile
	updates   map[string]hr.ProfileUpdate
	updateErr error
}

func (f *fakeProfiles) FindProfile(_ context.Context, id string) (hr.Profile, error) {
	if f.findErr != nil {
		return hr.Profile{}, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return hr.Profile{}, hr.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) ListProfiles(_ context.Context, q hr.Query) ([]hr.Profile, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.list, f.listErr
}

func (f *fakeProfiles) CountProfiles(_ context.Context, filters ...hr.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, filters)
	if f.listErr != nil {
		return 0, f.listErr
	}
	n := 0
	for _, p := range f.list {
		if matchEq(filters, map[string]any{"status": p.Status, "manager_id": p.ManagerID, "role": p.Role.String()}) {
			n++
		}
	}
	return n, nil
}

func (f *fakeProfiles) CreateProfile(_ context.Context, p hr.Profile) error {
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, id string, u hr.ProfileUpdate) (hr.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]hr.ProfileUpdate{}
	}
	f.updates[id] = u
	if f.updateErr != nil {
		return hr.Profile{}, f.updateErr
	}
	p, ok := f.rows[id]
	if !ok {
		return hr.Profile{}, hr.ErrNotFound
	}
	p.FirstName, p.LastName = u.FirstName, u.LastName
	p.Phone, p.Address = u.Phone, u.Address
	p.EmergencyContactName, p.EmergencyContactPhone = u.EmergencyContactName, u.EmergencyContactPhone
	f.rows[id] = p
	return p, nil
}

type fakeActivity struct {
	mu           sync.Mutex
	attendance   []hr.AttendanceRecord
	leaves       []hr.LeaveRequest
	types        []hr.LeaveType
	err          error
	attQueries   []hr.Query
	leaveQueries []hr.Query
	attCounts    [][]hr.Filter
	leaveCounts  [][]hr.Filter
	created      []hr.LeaveRequest
	decisions    []hr.LeaveDecision
	decideErr    error
}

func (f *fakeActivity) Attendance(_ context.Context, q hr.Query) ([]hr.AttendanceRecord, error) {
	f.mu.Lock()
	f.attQueries = append(f.attQueries, q)
	f.mu.Unlock()
	return f.attendance, f.err
}

func (f *fakeActivity) CountAttendance(_ context.Context, filters ...hr.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attCounts = append(f.attCounts, filters)
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, rec := range f.attendance {
		if matchEq(filters, map[string]any{"status": rec.Status, "employee_id": rec.EmployeeID}) {
			n++
		}
	}
	return n, nil
}

func (f *fakeActivity) LeaveRequests(_ context.Context, q hr.Query) ([]hr.LeaveRequest, error) {
	f.mu.Lock()
	f.leaveQueries = append(f.leaveQueries, q)
	f.mu.Unlock()
	return f.leaves, f.err
}

func (f *fakeActivity) CountLeaveRequests(_ context.Context, filters ...hr.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCounts = append(f.leaveCounts, filters)
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, lr := range f.leaves {
		if matchEq(filters, map[string]any{"status": lr.Status, "employee_id": lr.EmployeeID}) {
			n++
		}
	}
	return n, nil
}

func (f *fakeActivity) FindLeaveRequest(_ context.Context, id string) (hr.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return hr.LeaveRequest{}, f.err
	}
	for _, lr := range f.leaves {
		if lr.ID == id {
			return lr, nil
		}
	}
	return hr.LeaveRequest{}, hr.ErrNotFound
}

func (f *fakeActivity) LeaveTypes(_ context.Context, _ bool) ([]hr.LeaveType, error) {
	return f.types, f.err
}

func (f *fakeActivity) CreateLeaveRequest(_ context.Context, lr hr.LeaveRequest) (hr.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return hr.LeaveRequest{}, f.err
	}
	lr.ID = "l-new"
	lr.Status = hr.LeavePending
	f.created = append(f.created, lr)
	return lr, nil
}

func (f *fakeActivity) DecideLeaveRequest(_ context.Context, id string, d hr.LeaveDecision) (hr.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
	if f.decideErr != nil {
		return hr.LeaveRequest{}, f.decideErr
	}
	for i, lr := range f.leaves {
		if lr.ID == id {
			lr.Status, lr.ApprovedBy, lr.ApprovedAt, lr.RejectionReason = d.Status, d.ReviewerID, d.At, d.Reason
			f.leaves[i] = lr
			return lr, nil
		}
	}
	return hr.LeaveRequest{}, hr.ErrNotFound
}

func (f *fakeActivity) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attQueries) + len(f.leaveQueries) + len(f.attCounts) + len(f.leaveCounts)
}

// matchEq applies the equality filters whose column the fake knows; other
// filters (date ranges) are assumed to match.
func matchEq(filters []hr.Filter, row map[string]any) bool {
	for _, f := range filters {
		v, known := row[f.Column]
		if f.Op == hr.OpEq && known && v != f.Value {
			return false
		}
	}
	return true
}

func testConfig(env string) config.Config {
	return config.Config{
		Env: env,
		Backend: config.Backend{
			Kind:    config.BackendGoTrue,
			URL:     "https://proj.supabase.co",
			AnonKey: "anon-test-key",
		},
		RateBurst:  100,
		RatePerSec: 100,
		Version:    "test",
	}
}

// accessToken returns a JWT expiring at exp. The refresher only reads the
// expiry; the fake store decides whether the token is accepted.
func accessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func withSessionCookies(req *http.Request, access, refresh string) {
	if access != "" {
		req.AddCookie(&http.Cookie{Name: session.AccessCookie, Value: access})
	}
	if refresh != "" {
		req.AddCookie(&http.Cookie{Name: session.RefreshCookie, Value: refresh})
	}
}

// signedIn makes store accept one fresh access token for u and returns it.
func signedIn(t *testing.T, store *fakeStore, u auth.User) string {
	t.Helper()
	tok := accessToken(t, time.Now().Add(time.Hour))
	store.getUser = func(got string) (auth.User, error) {
		if got != tok {
			return auth.User{}, auth.ErrInvalidToken
		}
		return u, nil
	}
	return tok
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return v
}

func cookieSet(rr *httptest.ResponseRecorder, name string) (*http.Cookie, bool) {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func auditLines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil {
			out = append(out, entry)
		}
	}
	return out
}

func hasAuditEvent(buf *bytes.Buffer, event string) bool {
	for _, e := range auditLines(buf) {
		if e["event"] == event {
			return true
		}
	}
	return false
}
