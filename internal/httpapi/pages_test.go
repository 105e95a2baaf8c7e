package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"hrportal.org/internal/audit"
	"hrportal.org/internal/config"
	"hrportal.org/internal/guard"
	"hrportal.org/internal/hr"
)

func authedGet(t *testing.T, h http.Handler, tok, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	withSessionCookies(req, tok, "refresh-1")
	return serve(h, req)
}

func TestDashboardSynthesizesMissingProfile(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	api := New(testConfig(config.EnvProduction), store,
		WithProfiles(&fakeProfiles{}),
		WithActivity(&fakeActivity{err: hr.ErrTableMissing}),
	)

	rr := authedGet(t, api.Handler(), tok, "/dashboard")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	view := decodeBody[map[string]any](t, rr)
	profile, _ := view["profile"].(map[string]any)
	if profile["role"] != "employee" || profile["first_name"] != "User" || profile["source"] != "synthesized" {
		t.Fatalf("unexpected fallback profile: %v", profile)
	}
	stats, _ := view["stats"].(map[string]any)
	if stats["days_present"] != float64(0) || stats["pending_leaves"] != float64(0) {
		t.Fatalf("expected zeroed stats, got %v", stats)
	}
	if nav, _ := view["nav"].([]any); len(nav) != 6 {
		t.Fatalf("expected base navigation, got %d entries", len(nav))
	}
}

func TestDashboardStats(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	now := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
	activity := &fakeActivity{
		attendance: []hr.AttendanceRecord{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
		leaves: []hr.LeaveRequest{
			{ID: "l1", Status: "pending"},
			{ID: "l2", Status: "approved"},
			{ID: "l3", Status: "pending"},
		},
	}
	profiles := &fakeProfiles{rows: map[string]hr.Profile{alice.ID: {ID: alice.ID, FirstName: "Alice", Role: hr.RoleTeamLead}}}
	api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles), WithActivity(activity), WithClock(func() time.Time { return now }))

	rr := authedGet(t, api.Handler(), tok, "/dashboard")
	view := decodeBody[map[string]any](t, rr)
	stats, _ := view["stats"].(map[string]any)
	if stats["days_present"] != float64(3) || stats["pending_leaves"] != float64(2) {
		t.Fatalf("unexpected stats %v", stats)
	}
	if view["variant"] != "team_lead" || view["role_label"] != "TEAM LEAD" {
		t.Fatalf("unexpected variant %v / %v", view["variant"], view["role_label"])
	}

	att := activity.attQueries[0]
	if len(att.Filters) != 2 || att.Filters[1].Value != time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("attendance query not scoped to this month: %+v", att)
	}
	lq := activity.leaveQueries[0]
	if lq.Limit != 5 || lq.OrderBy != "created_at" || !lq.Desc {
		t.Fatalf("unexpected leave query %+v", lq)
	}
}

func TestDashboardSections(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	activity := &fakeActivity{types: []hr.LeaveType{{ID: "t1", Name: "Annual", IsActive: true}}}
	api := New(testConfig(config.EnvProduction), store, WithActivity(activity))
	h := api.Handler()

	rr := authedGet(t, h, tok, "/dashboard/leaves")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	view := decodeBody[map[string]any](t, rr)
	if view["section"] != "leaves" || view["active"] != float64(3) {
		t.Fatalf("unexpected section view %v", view)
	}
	if types, _ := view["leave_types"].([]any); len(types) != 1 {
		t.Fatalf("leave types missing: %v", view["leave_types"])
	}

	if rr := authedGet(t, h, tok, "/dashboard/unknown"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown section status = %d", rr.Code)
	}
}

func TestAdminPagesRequireAdminProfile(t *testing.T) {
	cases := []struct {
		name    string
		profile *hr.Profile
		want    int
	}{
		{name: "missing profile", profile: nil, want: http.StatusTemporaryRedirect},
		{name: "employee", profile: &hr.Profile{ID: alice.ID, Role: hr.RoleEmployee}, want: http.StatusTemporaryRedirect},
		{name: "team lead", profile: &hr.Profile{ID: alice.ID, Role: hr.RoleTeamLead}, want: http.StatusTemporaryRedirect},
		{name: "hr admin", profile: &hr.Profile{ID: alice.ID, Role: hr.RoleHRAdmin}, want: http.StatusOK},
		{name: "super admin", profile: &hr.Profile{ID: alice.ID, Role: hr.RoleSuperAdmin}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{t: t}
			tok := signedIn(t, store, alice)
			profiles := &fakeProfiles{rows: map[string]hr.Profile{}}
			if tc.profile != nil {
				profiles.rows[alice.ID] = *tc.profile
			}
			var auditBuf bytes.Buffer
			api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles), WithAudit(audit.New(&auditBuf)))
			h := api.Handler()

			for _, path := range []string{"/admin", "/admin/employees"} {
				rr := authedGet(t, h, tok, path)
				if rr.Code != tc.want {
					t.Fatalf("%s status = %d, want %d", path, rr.Code, tc.want)
				}
				if tc.want != http.StatusOK {
					if rr.Header().Get("Location") != guard.LandingPath {
						t.Fatalf("%s location = %q", path, rr.Header().Get("Location"))
					}
					if !hasAuditEvent(&auditBuf, audit.EventAccessDenied) {
						t.Fatalf("%s: access denial not audited", path)
					}
				}
			}
		})
	}
}

func TestAdminStats(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	now := time.Date(2026, 3, 18, 15, 4, 5, 0, time.UTC)
	profiles := &fakeProfiles{
		rows: map[string]hr.Profile{alice.ID: {ID: alice.ID, Role: hr.RoleHRAdmin}},
		list: []hr.Profile{
			{ID: "a", Status: hr.StatusActive},
			{ID: "b", Status: hr.StatusActive},
			{ID: "c", Status: hr.StatusTerminated},
		},
	}
	activity := &fakeActivity{
		leaves:     []hr.LeaveRequest{{ID: "l1", Status: "pending"}},
		attendance: []hr.AttendanceRecord{{Status: "present"}, {Status: "absent"}, {Status: "present"}},
	}
	api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles), WithActivity(activity), WithClock(func() time.Time { return now }))

	rr := authedGet(t, api.Handler(), tok, "/admin")
	view := decodeBody[adminView](t, rr)
	want := adminStats{TotalEmployees: 3, ActiveEmployees: 2, PendingLeaves: 1, PresentToday: 2}
	if view.Stats != want {
		t.Fatalf("stats = %+v, want %+v", view.Stats, want)
	}
	if len(view.Nav) != 8 || view.Nav[6].Name != "HR Admin" || view.Nav[7].Name != "All Employees" {
		t.Fatalf("unexpected admin navigation %+v", view.Nav)
	}
	day := activity.attCounts[0][0].Value
	if day != time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("attendance day = %v", day)
	}
	// Stats come from counts, never from capped listings.
	if len(profiles.queries) != 0 || len(activity.leaveQueries) != 0 || len(activity.attQueries) != 0 {
		t.Fatalf("admin stats listed rows: %v %v %v", profiles.queries, activity.leaveQueries, activity.attQueries)
	}
}

func TestEmployeesOrderedNewestFirst(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	profiles := &fakeProfiles{
		rows: map[string]hr.Profile{alice.ID: {ID: alice.ID, Role: hr.RoleSuperAdmin}},
		list: []hr.Profile{{ID: "x"}, {ID: "y"}},
	}
	api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles))

	rr := authedGet(t, api.Handler(), tok, "/admin/employees")
	view := decodeBody[employeesView](t, rr)
	if len(view.Employees) != 2 {
		t.Fatalf("employees = %d", len(view.Employees))
	}
	q := profiles.queries[0]
	if q.OrderBy != "created_at" || !q.Desc {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestTeamPage(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	profiles := &fakeProfiles{
		rows: map[string]hr.Profile{alice.ID: {ID: alice.ID, Role: hr.RoleTeamLead}},
		list: []hr.Profile{{ID: "m1", ManagerID: alice.ID}, {ID: "m2", ManagerID: alice.ID}},
	}
	activity := &fakeActivity{leaves: []hr.LeaveRequest{{ID: "l1", EmployeeID: "m1", Status: "pending"}}}
	api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles), WithActivity(activity))

	rr := authedGet(t, api.Handler(), tok, "/team")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	view := decodeBody[teamView](t, rr)
	if len(view.Members) != 2 || len(view.PendingLeaves) != 1 {
		t.Fatalf("unexpected team view %+v", view)
	}
	mq := profiles.queries[0]
	if len(mq.Filters) != 2 || mq.Filters[0].Column != "manager_id" || mq.Filters[0].Value != alice.ID {
		t.Fatalf("members query %+v", mq)
	}
	lq := activity.leaveQueries[0]
	ids, _ := lq.Filters[0].Value.([]string)
	if lq.Filters[0].Op != hr.OpIn || len(ids) != 2 {
		t.Fatalf("leave query %+v", lq)
	}
}

func TestTeamPageRejectsAdmin(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	profiles := &fakeProfiles{rows: map[string]hr.Profile{alice.ID: {ID: alice.ID, Role: hr.RoleHRAdmin}}}
	api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles))

	rr := authedGet(t, api.Handler(), tok, "/team")
	if rr.Header().Get("Location") != guard.LandingPath {
		t.Fatalf("location = %q", rr.Header().Get("Location"))
	}
}

func TestRootRedirects(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)

	cases := []struct {
		name    string
		target  string
		authed  bool
		missing bool
		want    string
	}{
		{name: "anonymous", target: "/", want: guard.LoginPath},
		{name: "authenticated", target: "/", authed: true, want: guard.LandingPath},
		{name: "expired link", target: "/?error=access_denied&error_code=otp_expired", want: "/auth/login?error=otp_expired"},
		{name: "other error", target: "/?error=access_denied&error_description=Denied", want: "/auth/login?error=access_denied&error_description=Denied"},
		{name: "tables missing", target: "/", authed: true, missing: true, want: guard.ErrorPath + "?error=database_setup"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store.t = t
			profiles := &fakeProfiles{}
			if tc.missing {
				profiles.findErr = hr.ErrTableMissing
			}
			api := New(testConfig(config.EnvProduction), store, WithProfiles(profiles))
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.authed {
				withSessionCookies(req, tok, "refresh-1")
			}
			rr := serve(api.Handler(), req)
			loc, err := url.Parse(rr.Header().Get("Location"))
			if err != nil {
				t.Fatalf("parse location: %v", err)
			}
			want, _ := url.Parse(tc.want)
			if loc.Path != want.Path {
				t.Fatalf("location = %q, want %q", loc, tc.want)
			}
			for k := range want.Query() {
				if loc.Query().Get(k) != want.Query().Get(k) {
					t.Fatalf("location = %q, want %q", loc, tc.want)
				}
			}
		})
	}
}

func TestUnknownPath(t *testing.T) {
	store := &fakeStore{t: t}
	tok := signedIn(t, store, alice)
	api := New(testConfig(config.EnvProduction), store)
	h := api.Handler()

	if rr := authedGet(t, h, tok, "/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("authenticated unknown path status = %d", rr.Code)
	}
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Header().Get("Location") != guard.LoginPath {
		t.Fatalf("anonymous unknown path location = %q", rr.Header().Get("Location"))
	}
}

func TestErrorPageKinds(t *testing.T) {
	api := New(testConfig(config.EnvProduction), &fakeStore{t: t})
	h := api.Handler()
	for kind, title := range map[string]string{
		"configuration_error": "Configuration Error",
		"database_setup":      "Database Setup Required",
		"":                    "Authentication Error",
	} {
		rr := serve(h, httptest.NewRequest(http.MethodGet, guard.ErrorPath+"?error="+kind, nil))
		page := decodeBody[errorPage](t, rr)
		if page.Title != title {
			t.Fatalf("kind %q: title = %q", kind, page.Title)
		}
	}
}
