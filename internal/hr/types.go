package hr

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("hr: not found")
	ErrTableMissing = errors.New("hr: table missing")
	ErrInvalidQuery = errors.New("hr: invalid query")
	// ErrConflict: the row changed state before the write landed.
	ErrConflict = errors.New("hr: conflict")
)

const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusTerminated = "terminated"
)

const (
	LeavePending   = "pending"
	LeaveApproved  = "approved"
	LeaveRejected  = "rejected"
	LeaveCancelled = "cancelled"
)

// Profile is the directory entry of one user.
type Profile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       Role      `json:"role"`
	Department string    `json:"department"`
	Position   string    `json:"position"`
	Status     string    `json:"status"`
	ManagerID  string    `json:"manager_id,omitempty"`
	HireDate   time.Time `json:"hire_date,omitzero"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`

	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
}

// ProfileUpdate is what a user may change on their own profile. Role,
// status, manager and email are not part of it.
type ProfileUpdate struct {
	FirstName             string
	LastName              string
	Phone                 string
	Address               string
	EmergencyContactName  string
	EmergencyContactPhone string
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// AttendanceRecord is one day of attendance.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Date       time.Time `json:"date"`
	Status     string    `json:"status"`
	CheckIn    time.Time `json:"check_in,omitzero"`
	CheckOut   time.Time `json:"check_out,omitzero"`
}

// LeaveRequest is a request for time off.
type LeaveRequest struct {
	ID          string    `json:"id"`
	EmployeeID  string    `json:"employee_id"`
	LeaveTypeID string    `json:"leave_type_id"`
	LeaveType   string    `json:"leave_type,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	DaysRequested   int       `json:"days_requested,omitempty"`
	ApprovedBy      string    `json:"approved_by,omitempty"`
	ApprovedAt      time.Time `json:"approved_at,omitzero"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

// LeaveDecision is a reviewer's verdict on a pending request.
type LeaveDecision struct {
	Status     string
	ReviewerID string
	Reason     string
	At         time.Time
}

// LeaveDays counts calendar days from start to end, both included.
func LeaveDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// LeaveType is a configured category of leave.
type LeaveType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DaysAllowed int    `json:"days_allowed"`
	IsActive    bool   `json:"is_active"`
}
