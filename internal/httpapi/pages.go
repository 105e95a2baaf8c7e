package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hrportal.org/internal/audit"
	"hrportal.org/internal/auth"
	"hrportal.org/internal/guard"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/nav"
	"hrportal.org/internal/obs"
)

const (
	databaseSetupCode        = "database_setup"
	databaseSetupDescription = "Database tables not created. Please run the migrations."
	attendancePresent        = "present"
)

// pageView is the chrome every portal page renders with.
type pageView struct {
	Path      string              `json:"path"`
	Profile   hr.EffectiveProfile `json:"profile"`
	RoleLabel string              `json:"role_label"`
	Nav       []nav.Entry         `json:"nav"`
	Settings  nav.Entry           `json:"settings"`
	Active    int                 `json:"active"`
	Variant   nav.Variant         `json:"variant"`
}

func (a *API) chrome(r *http.Request, ep hr.EffectiveProfile) pageView {
	entries := nav.Build(ep.Role)
	return pageView{
		Path:      r.URL.Path,
		Profile:   ep,
		RoleLabel: ep.Role.Label(),
		Nav:       entries,
		Settings:  nav.Settings,
		Active:    nav.Active(entries, r.URL.Path),
		Variant:   nav.DashboardVariant(ep.Role),
	}
}

// profileFor resolves the effective profile of u, logging a synthesized one
// as the non-fatal condition it is.
func (a *API) profileFor(ctx context.Context, u auth.User) hr.EffectiveProfile {
	ep := hr.ResolveProfile(ctx, a.profiles, u.Identity())
	if !ep.Found() {
		a.log.Warn(ctx, "profile fallback", obs.Fields{"error": ep.Cause})
	}
	return ep
}

// handleRoot is the landing route. It runs its own auth check, which is why
// the guard leaves it alone.
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != guard.RootPath {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	if q.Get("error_code") == "otp_expired" {
		redirect(w, r, guard.LoginPath+"?error=otp_expired")
		return
	}
	if e := q.Get("error"); e != "" {
		v := url.Values{}
		v.Set("error", e)
		v.Set("error_description", q.Get("error_description"))
		redirect(w, r, guard.LoginPath+"?"+v.Encode())
		return
	}

	u, ok := auth.UserFromContext(ctx)
	if !ok {
		a.log.Navigation(ctx, "root_redirect", guard.RootPath, guard.LoginPath)
		redirect(w, r, guard.LoginPath)
		return
	}
	if ep := hr.ResolveProfile(ctx, a.profiles, u.Identity()); errors.Is(ep.Cause, hr.ErrTableMissing) {
		v := url.Values{}
		v.Set("error", databaseSetupCode)
		v.Set("error_description", databaseSetupDescription)
		a.log.Exception(ctx, ep.Cause, "Database", "profiles_missing", nil)
		redirect(w, r, guard.ErrorPath+"?"+v.Encode())
		return
	}
	a.log.Navigation(ctx, "root_redirect", guard.RootPath, guard.LandingPath)
	redirect(w, r, guard.LandingPath)
}

type errorPage struct {
	Page        string `json:"page"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
}

// handleErrorPage is the terminal error page. It is in the exclusion set and
// always renders.
func (a *API) handleErrorPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := errorPage{Page: "auth-code-error", Kind: q.Get("error"), Description: q.Get("error_description")}
	switch page.Kind {
	case guard.ConfigErrCode:
		page.Title = "Configuration Error"
		page.Summary = "Application needs to be configured"
	case databaseSetupCode:
		page.Title = "Database Setup Required"
		page.Summary = "Database tables need to be created"
	default:
		page.Kind = "auth_error"
		page.Title = "Authentication Error"
		page.Summary = "There was an issue confirming your email"
	}
	writeJSON(w, http.StatusOK, page)
}

type dashboardStats struct {
	DaysPresent   int `json:"days_present"`
	PendingLeaves int `json:"pending_leaves"`
}

type dashboardView struct {
	pageView
	Stats        dashboardStats    `json:"stats"`
	RecentLeaves []hr.LeaveRequest `json:"recent_leaves"`
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	ep := a.profileFor(ctx, u)
	view := dashboardView{pageView: a.chrome(r, ep), RecentLeaves: []hr.LeaveRequest{}}

	if a.activity != nil {
		att, err := a.activity.Attendance(ctx, hr.Query{Filters: []hr.Filter{
			hr.Eq("employee_id", u.ID),
			hr.Gte("date", hr.MonthStart(a.now())),
		}})
		if err != nil {
			a.log.Warn(ctx, "attendance unavailable", obs.Fields{"error": err})
		} else {
			view.Stats.DaysPresent = len(att)
		}

		leaves, err := a.activity.LeaveRequests(ctx, hr.Query{
			Filters: []hr.Filter{hr.Eq("employee_id", u.ID)},
			OrderBy: "created_at",
			Desc:    true,
			Limit:   5,
		})
		if err != nil {
			a.log.Warn(ctx, "leave requests unavailable", obs.Fields{"error": err})
		} else {
			view.RecentLeaves = leaves
			view.Stats.PendingLeaves = countLeaves(leaves, hr.LeavePending)
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// dashboardSections maps /dashboard/<name> to the section it renders.
var dashboardSections = map[string]hr.Section{
	"profile":       hr.SectionProfile,
	"attendance":    hr.SectionAttendance,
	"leaves":        hr.SectionLeaves,
	"salary":        hr.SectionSalary,
	"notifications": hr.SectionNotifications,
	"settings":      hr.SectionSettings,
}

type sectionView struct {
	pageView
	Section    hr.Section            `json:"section"`
	Attendance []hr.AttendanceRecord `json:"attendance,omitempty"`
	Leaves     []hr.LeaveRequest     `json:"leaves,omitempty"`
	LeaveTypes []hr.LeaveType        `json:"leave_types,omitempty"`
}

func (a *API) handleDashboardSection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, guard.LandingPath), "/")
	section, known := dashboardSections[name]
	if !known {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	ctx := r.Context()
	ep := a.profileFor(ctx, u)
	view := sectionView{pageView: a.chrome(r, ep), Section: section}

	if a.activity != nil {
		own := []hr.Filter{hr.Eq("employee_id", u.ID)}
		switch section {
		case hr.SectionAttendance:
			att, err := a.activity.Attendance(ctx, hr.Query{Filters: own, OrderBy: "date", Desc: true, Limit: 31})
			if err != nil {
				a.log.Warn(ctx, "attendance unavailable", obs.Fields{"error": err})
			}
			view.Attendance = att
		case hr.SectionLeaves:
			leaves, err := a.activity.LeaveRequests(ctx, hr.Query{Filters: own, OrderBy: "created_at", Desc: true})
			if err != nil {
				a.log.Warn(ctx, "leave requests unavailable", obs.Fields{"error": err})
			}
			view.Leaves = leaves
			types, err := a.activity.LeaveTypes(ctx, true)
			if err != nil {
				a.log.Warn(ctx, "leave types unavailable", obs.Fields{"error": err})
			}
			view.LeaveTypes = types
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// requireSection guards the read-only section pages.
func (a *API) requireSection(w http.ResponseWriter, r *http.Request, section hr.Section) (auth.User, hr.EffectiveProfile, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return auth.User{}, hr.EffectiveProfile{}, false
	}
	return a.authorize(w, r, section)
}

// authorize loads the caller's profile and lets the request through only
// when a stored profile grants section. Navigation visibility is not
// trusted; this is the access check for pages and writes alike.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, section hr.Section) (auth.User, hr.EffectiveProfile, bool) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return auth.User{}, hr.EffectiveProfile{}, false
	}
	ctx := r.Context()
	ep := a.profileFor(ctx, u)
	if !ep.Found() || !ep.Role.Can(section) {
		a.record(ctx, audit.EventAccessDenied, map[string]any{"path": r.URL.Path, "role": ep.Role.String(), "source": string(ep.Source)})
		a.log.Navigation(ctx, "access_denied", r.URL.Path, guard.LandingPath)
		redirect(w, r, guard.LandingPath)
		return auth.User{}, hr.EffectiveProfile{}, false
	}
	return u, ep, true
}

type adminStats struct {
	TotalEmployees  int `json:"total_employees"`
	ActiveEmployees int `json:"active_employees"`
	PendingLeaves   int `json:"pending_leaves"`
	PresentToday    int `json:"present_today"`
}

type adminView struct {
	pageView
	Stats adminStats `json:"stats"`
}

func (a *API) handleAdmin(w http.ResponseWriter, r *http.Request) {
	_, ep, ok := a.requireSection(w, r, hr.SectionAdmin)
	if !ok {
		return
	}
	ctx := r.Context()
	view := adminView{pageView: a.chrome(r, ep)}

	if a.profiles != nil {
		var err error
		if view.Stats.TotalEmployees, err = a.profiles.CountProfiles(ctx); err != nil {
			a.log.Warn(ctx, "profiles unavailable", obs.Fields{"error": err})
		}
		if view.Stats.ActiveEmployees, err = a.profiles.CountProfiles(ctx, hr.Eq("status", hr.StatusActive)); err != nil {
			a.log.Warn(ctx, "profiles unavailable", obs.Fields{"error": err})
		}
	}
	if a.activity != nil {
		var err error
		if view.Stats.PendingLeaves, err = a.activity.CountLeaveRequests(ctx, hr.Eq("status", hr.LeavePending)); err != nil {
			a.log.Warn(ctx, "leave requests unavailable", obs.Fields{"error": err})
		}
		today := a.now().UTC().Truncate(24 * time.Hour)
		if view.Stats.PresentToday, err = a.activity.CountAttendance(ctx, hr.Eq("date", today), hr.Eq("status", attendancePresent)); err != nil {
			a.log.Warn(ctx, "attendance unavailable", obs.Fields{"error": err})
		}
	}
	writeJSON(w, http.StatusOK, view)
}

type employeesView struct {
	pageView
	Employees []hr.Profile `json:"employees"`
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	_, ep, ok := a.requireSection(w, r, hr.SectionEmployees)
	if !ok {
		return
	}
	ctx := r.Context()
	view := employeesView{pageView: a.chrome(r, ep), Employees: []hr.Profile{}}
	if a.profiles != nil {
		all, err := a.profiles.ListProfiles(ctx, hr.Query{OrderBy: "created_at", Desc: true})
		if err != nil {
			a.log.Warn(ctx, "profiles unavailable", obs.Fields{"error": err})
		} else {
			view.Employees = all
		}
	}
	writeJSON(w, http.StatusOK, view)
}

type teamView struct {
	pageView
	Members       []hr.Profile      `json:"members"`
	PendingLeaves []hr.LeaveRequest `json:"pending_leaves"`
}

func (a *API) handleTeam(w http.ResponseWriter, r *http.Request) {
	u, ep, ok := a.requireSection(w, r, hr.SectionTeam)
	if !ok {
		return
	}
	ctx := r.Context()
	view := teamView{pageView: a.chrome(r, ep), Members: []hr.Profile{}, PendingLeaves: []hr.LeaveRequest{}}

	if a.profiles != nil {
		members, err := a.profiles.ListProfiles(ctx, hr.Query{Filters: []hr.Filter{
			hr.Eq("manager_id", u.ID),
			hr.Eq("status", hr.StatusActive),
		}})
		if err != nil {
			a.log.Warn(ctx, "team unavailable", obs.Fields{"error": err})
		} else {
			view.Members = members
		}
	}
	if a.activity != nil && len(view.Members) > 0 {
		ids := make([]string, 0, len(view.Members))
		for _, m := range view.Members {
			ids = append(ids, m.ID)
		}
		leaves, err := a.activity.LeaveRequests(ctx, hr.Query{
			Filters: []hr.Filter{hr.In("employee_id", ids), hr.Eq("status", hr.LeavePending)},
			OrderBy: "created_at",
			Desc:    true,
		})
		if err != nil {
			a.log.Warn(ctx, "leave requests unavailable", obs.Fields{"error": err})
		} else {
			view.PendingLeaves = leaves
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func countLeaves(leaves []hr.LeaveRequest, status string) int {
	n := 0
	for _, l := range leaves {
		if l.Status == status {
			n++
		}
	}
	return n
}
