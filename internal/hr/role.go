package hr

import "strings"

// Role is the closed set of portal roles.
type Role int

const (
	RoleEmployee Role = iota
	RoleTeamLead
	RoleHRAdmin
	RoleSuperAdmin
)

var roleNames = [...]string{
	RoleEmployee:   "employee",
	RoleTeamLead:   "team_lead",
	RoleHRAdmin:    "hr_admin",
	RoleSuperAdmin: "super_admin",
}

// ParseRole maps a stored role string to a Role. Unknown or empty values
// resolve to RoleEmployee with ok=false; they never fail.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range roleNames {
		if name == s {
			return Role(i), true
		}
	}
	return RoleEmployee, false
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return roleNames[RoleEmployee]
	}
	return roleNames[r]
}

// Label is the display badge, e.g. "TEAM LEAD".
func (r Role) Label() string {
	return strings.ToUpper(strings.ReplaceAll(r.String(), "_", " "))
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	*r, _ = ParseRole(string(b))
	return nil
}

// IsAdmin reports whether r administers the whole directory.
func (r Role) IsAdmin() bool {
	return r == RoleHRAdmin || r == RoleSuperAdmin
}

// Section is a top-level portal area guarded by role.
type Section string

const (
	SectionDashboard     Section = "dashboard"
	SectionProfile       Section = "profile"
	SectionAttendance    Section = "attendance"
	SectionLeaves        Section = "leaves"
	SectionSalary        Section = "salary"
	SectionNotifications Section = "notifications"
	SectionSettings      Section = "settings"
	SectionAdmin         Section = "admin"
	SectionEmployees     Section = "employees"
	SectionTeam          Section = "team"
)

var baseSections = []Section{
	SectionDashboard,
	SectionProfile,
	SectionAttendance,
	SectionLeaves,
	SectionSalary,
	SectionNotifications,
	SectionSettings,
}

var roleSections = map[Role][]Section{
	RoleEmployee:   nil,
	RoleTeamLead:   {SectionTeam},
	RoleHRAdmin:    {SectionAdmin, SectionEmployees},
	RoleSuperAdmin: {SectionAdmin, SectionEmployees},
}

// Sections lists the sections r may reach, base sections first.
func (r Role) Sections() []Section {
	out := make([]Section, 0, len(baseSections)+2)
	out = append(out, baseSections...)
	return append(out, roleSections[r]...)
}

// Can reports whether r may reach section s. This is the authoritative
// access check used by page loaders.
func (r Role) Can(s Section) bool {
	for _, have := range r.Sections() {
		if have == s {
			return true
		}
	}
	return false
}
