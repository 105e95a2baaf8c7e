// Package store holds repository wrappers shared by every backend.
package store

import (
	"context"
	"errors"
	"time"

	"hrportal.org/internal/hr"
	"hrportal.org/internal/obs"
)

// Logged forwards repository calls while emitting database events and
// latency metrics. A nil inner store answers hr.ErrTableMissing so pages
// degrade instead of failing when no database is configured.
type Logged struct {
	profiles hr.ProfileStore
	activity hr.ActivityStore
	log      *obs.Logger
	now      func() time.Time
}

var (
	_ hr.ProfileStore  = (*Logged)(nil)
	_ hr.ActivityStore = (*Logged)(nil)
)

// NewLogged wraps the given stores.
func NewLogged(profiles hr.ProfileStore, activity hr.ActivityStore, log *obs.Logger) *Logged {
	return &Logged{profiles: profiles, activity: activity, log: log, now: time.Now}
}

var errNoBackend = errors.New("no repository configured")

func (l *Logged) FindProfile(ctx context.Context, id string) (p hr.Profile, err error) {
	defer l.observe(ctx, "profiles", "find", l.now(), &err, obs.Fields{"id": id})
	if l.profiles == nil {
		return hr.Profile{}, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.profiles.FindProfile(ctx, id)
}

func (l *Logged) ListProfiles(ctx context.Context, q hr.Query) (out []hr.Profile, err error) {
	defer l.observeList(ctx, "profiles", q, l.now(), &err, func() int { return len(out) })
	if l.profiles == nil {
		return nil, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.profiles.ListProfiles(ctx, q)
}

func (l *Logged) CreateProfile(ctx context.Context, p hr.Profile) (err error) {
	defer l.observe(ctx, "profiles", "insert", l.now(), &err, obs.Fields{"id": p.ID, "role": p.Role.String()})
	if l.profiles == nil {
		return errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.profiles.CreateProfile(ctx, p)
}

func (l *Logged) CountProfiles(ctx context.Context, filters ...hr.Filter) (n int, err error) {
	defer l.observeCount(ctx, "profiles", filters, l.now(), &err, &n)
	if l.profiles == nil {
		return 0, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.profiles.CountProfiles(ctx, filters...)
}

func (l *Logged) UpdateProfile(ctx context.Context, id string, u hr.ProfileUpdate) (p hr.Profile, err error) {
	defer l.observe(ctx, "profiles", "update", l.now(), &err, obs.Fields{"id": id})
	if l.profiles == nil {
		return hr.Profile{}, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.profiles.UpdateProfile(ctx, id, u)
}

func (l *Logged) Attendance(ctx context.Context, q hr.Query) (out []hr.AttendanceRecord, err error) {
	defer l.observeList(ctx, "attendance", q, l.now(), &err, func() int { return len(out) })
	if l.activity == nil {
		return nil, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.Attendance(ctx, q)
}

func (l *Logged) CountAttendance(ctx context.Context, filters ...hr.Filter) (n int, err error) {
	defer l.observeCount(ctx, "attendance", filters, l.now(), &err, &n)
	if l.activity == nil {
		return 0, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.CountAttendance(ctx, filters...)
}

func (l *Logged) LeaveRequests(ctx context.Context, q hr.Query) (out []hr.LeaveRequest, err error) {
	defer l.observeList(ctx, "leave_requests", q, l.now(), &err, func() int { return len(out) })
	if l.activity == nil {
		return nil, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.LeaveRequests(ctx, q)
}

func (l *Logged) CountLeaveRequests(ctx context.Context, filters ...hr.Filter) (n int, err error) {
	defer l.observeCount(ctx, "leave_requests", filters, l.now(), &err, &n)
	if l.activity == nil {
		return 0, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.CountLeaveRequests(ctx, filters...)
}

func (l *Logged) FindLeaveRequest(ctx context.Context, id string) (lr hr.LeaveRequest, err error) {
	defer l.observe(ctx, "leave_requests", "find", l.now(), &err, obs.Fields{"id": id})
	if l.activity == nil {
		return hr.LeaveRequest{}, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.FindLeaveRequest(ctx, id)
}

func (l *Logged) CreateLeaveRequest(ctx context.Context, in hr.LeaveRequest) (lr hr.LeaveRequest, err error) {
	defer func(start time.Time) {
		l.observe(ctx, "leave_requests", "insert", start, &err, obs.Fields{
			"id": lr.ID, "employee_id": in.EmployeeID, "leave_type_id": in.LeaveTypeID,
		})
	}(l.now())
	if l.activity == nil {
		return hr.LeaveRequest{}, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.CreateLeaveRequest(ctx, in)
}

func (l *Logged) DecideLeaveRequest(ctx context.Context, id string, d hr.LeaveDecision) (lr hr.LeaveRequest, err error) {
	defer l.observe(ctx, "leave_requests", "update", l.now(), &err, obs.Fields{
		"id": id, "status": d.Status, "reviewer_id": d.ReviewerID,
	})
	if l.activity == nil {
		return hr.LeaveRequest{}, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.DecideLeaveRequest(ctx, id, d)
}

func (l *Logged) LeaveTypes(ctx context.Context, activeOnly bool) (out []hr.LeaveType, err error) {
	defer l.observeList(ctx, "leave_types", hr.Query{}, l.now(), &err, func() int { return len(out) })
	if l.activity == nil {
		return nil, errors.Join(hr.ErrTableMissing, errNoBackend)
	}
	return l.activity.LeaveTypes(ctx, activeOnly)
}

func (l *Logged) observeList(ctx context.Context, table string, q hr.Query, start time.Time, errp *error, count func() int) {
	fields := obs.Fields{"filters": len(q.Filters)}
	if q.OrderBy != "" {
		fields["order_by"] = q.OrderBy
	}
	if q.Limit > 0 {
		fields["limit"] = q.Limit
	}
	if *errp == nil {
		fields["rows"] = count()
	}
	l.observe(ctx, table, "select", start, errp, fields)
}

func (l *Logged) observeCount(ctx context.Context, table string, filters []hr.Filter, start time.Time, errp *error, n *int) {
	fields := obs.Fields{"filters": len(filters)}
	if *errp == nil {
		fields["count"] = *n
	}
	l.observe(ctx, table, "count", start, errp, fields)
}

func (l *Logged) observe(ctx context.Context, table, op string, start time.Time, errp *error, fields obs.Fields) {
	d := l.now().Sub(start)
	result := Result(*errp)
	obs.ObserveStoreQuery(table, op, result, d)

	fields["op"] = op
	fields["duration_ms"] = d.Milliseconds()
	fields["result"] = result
	switch result {
	case "ok":
		l.log.Database(ctx, op+"_success", table, fields)
	case "not_found", "missing_table", "conflict":
		// Expected during setup, for users without a profile row and for
		// reviews that lost a race.
		fields["error"] = *errp
		l.log.Database(ctx, op+"_empty", table, fields)
	default:
		l.log.Exception(ctx, *errp, "Database", op, fields)
	}
}

// Result labels err for metrics.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, hr.ErrNotFound):
		return "not_found"
	case errors.Is(err, hr.ErrTableMissing):
		return "missing_table"
	case errors.Is(err, hr.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
