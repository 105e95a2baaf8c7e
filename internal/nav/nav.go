// Package nav builds the role-aware navigation menu. Visibility here is not
// an access-control boundary; page loaders check hr.Role.Can themselves.
package nav

import "hrportal.org/internal/hr"

// Entry is one menu item.
type Entry struct {
	Name    string     `json:"name"`
	Href    string     `json:"href"`
	Icon    string     `json:"icon"`
	Section hr.Section `json:"section"`
}

var base = []Entry{
	{Name: "Dashboard", Href: "/dashboard", Icon: "home", Section: hr.SectionDashboard},
	{Name: "My Profile", Href: "/dashboard/profile", Icon: "user", Section: hr.SectionProfile},
	{Name: "Attendance", Href: "/dashboard/attendance", Icon: "clock", Section: hr.SectionAttendance},
	{Name: "Leave Requests", Href: "/dashboard/leaves", Icon: "calendar", Section: hr.SectionLeaves},
	{Name: "Salary Slips", Href: "/dashboard/salary", Icon: "file-text", Section: hr.SectionSalary},
	{Name: "Notifications", Href: "/dashboard/notifications", Icon: "bell", Section: hr.SectionNotifications},
}

var extra = map[hr.Section]Entry{
	hr.SectionAdmin:     {Name: "HR Admin", Href: "/admin", Icon: "bar-chart", Section: hr.SectionAdmin},
	hr.SectionEmployees: {Name: "All Employees", Href: "/admin/employees", Icon: "users", Section: hr.SectionEmployees},
	hr.SectionTeam:      {Name: "Team Management", Href: "/team", Icon: "users", Section: hr.SectionTeam},
}

// Settings is rendered in the menu footer for every role.
var Settings = Entry{Name: "Settings", Href: "/dashboard/settings", Icon: "settings", Section: hr.SectionSettings}

// Build returns the ordered menu for role: the six base entries followed by
// the entries of the privileged sections the role may reach.
func Build(role hr.Role) []Entry {
	out := make([]Entry, len(base), len(base)+2)
	copy(out, base)
	for _, s := range role.Sections() {
		if e, ok := extra[s]; ok {
			out = append(out, e)
		}
	}
	return out
}

// BuildFor parses a stored role string; unknown roles get the base menu.
func BuildFor(role string) []Entry {
	r, _ := hr.ParseRole(role)
	return Build(r)
}

// Variant is the dashboard flavour a role lands on.
type Variant string

const (
	VariantEmployee Variant = "employee"
	VariantTeamLead Variant = "team_lead"
	VariantAdmin    Variant = "admin"
)

// DashboardVariant resolves the landing dashboard for role.
func DashboardVariant(role hr.Role) Variant {
	switch {
	case role.IsAdmin():
		return VariantAdmin
	case role == hr.RoleTeamLead:
		return VariantTeamLead
	default:
		return VariantEmployee
	}
}

// VariantHome is the page that renders variant v.
func VariantHome(v Variant) string {
	switch v {
	case VariantAdmin:
		return "/admin"
	case VariantTeamLead:
		return "/team"
	default:
		return "/dashboard"
	}
}

// Active marks which entry matches path exactly; -1 when none does.
func Active(entries []Entry, path string) int {
	for i, e := range entries {
		if e.Href == path {
			return i
		}
	}
	return -1
}
