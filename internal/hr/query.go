package hr

import (
	"context"
	"time"
)

// Op is a comparison supported by the row store.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Filter restricts a query on one column. For OpIn, Value must be a []string.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Query selects rows from one table.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

func Eq(column string, v any) Filter  { return Filter{Column: column, Op: OpEq, Value: v} }
func Gte(column string, v any) Filter { return Filter{Column: column, Op: OpGte, Value: v} }
func Lte(column string, v any) Filter { return Filter{Column: column, Op: OpLte, Value: v} }
func In(column string, v []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: v}
}

// ProfileStore reads and writes the profiles table.
type ProfileStore interface {
	FindProfile(ctx context.Context, id string) (Profile, error)
	ListProfiles(ctx context.Context, q Query) ([]Profile, error)
	CountProfiles(ctx context.Context, filters ...Filter) (int, error)
	// CreateProfile inserts p unless a row with the same id exists.
	CreateProfile(ctx context.Context, p Profile) error
	// UpdateProfile applies u to the row with id and returns the result.
	UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (Profile, error)
}

// ActivityStore reads attendance and leave data and records leave requests
// and their review.
type ActivityStore interface {
	Attendance(ctx context.Context, q Query) ([]AttendanceRecord, error)
	CountAttendance(ctx context.Context, filters ...Filter) (int, error)
	LeaveRequests(ctx context.Context, q Query) ([]LeaveRequest, error)
	CountLeaveRequests(ctx context.Context, filters ...Filter) (int, error)
	FindLeaveRequest(ctx context.Context, id string) (LeaveRequest, error)
	LeaveTypes(ctx context.Context, activeOnly bool) ([]LeaveType, error)
	// CreateLeaveRequest stores lr as pending and returns the stored row.
	CreateLeaveRequest(ctx context.Context, lr LeaveRequest) (LeaveRequest, error)
	// DecideLeaveRequest moves a pending request to d.Status. A request that
	// is no longer pending answers ErrConflict.
	DecideLeaveRequest(ctx context.Context, id string, d LeaveDecision) (LeaveRequest, error)
}

// MonthStart returns midnight UTC of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
