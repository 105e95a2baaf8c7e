package pg

import (
	"context"
	"database/sql"
	"fmt"

	"hrportal.org/internal/hr"
)

var attendanceTable = table{
	name: "attendance",
	columns: map[string]string{
		"id":          "id",
		"employee_id": "employee_id",
		"date":        "date",
		"status":      "status",
	},
	defaultOrder: "date",
}

var leaveRequestsTable = table{
	name: "leave_requests",
	columns: map[string]string{
		"id":            "lr.id",
		"employee_id":   "lr.employee_id",
		"leave_type_id": "lr.leave_type_id",
		"status":        "lr.status",
		"start_date":    "lr.start_date",
		"end_date":      "lr.end_date",
		"created_at":    "lr.created_at",
	},
	defaultOrder: "lr.created_at",
}

func (s *Store) Attendance(ctx context.Context, q hr.Query) ([]hr.AttendanceRecord, error) {
	query, args, err := attendanceTable.build(
		`select id, employee_id, date, status, check_in, check_out from attendance`, q, nil)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("attendance", err)
	}
	defer rows.Close()

	var out []hr.AttendanceRecord
	for rows.Next() {
		var (
			rec               hr.AttendanceRecord
			checkIn, checkOut sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.Date, &rec.Status, &checkIn, &checkOut); err != nil {
			return nil, err
		}
		rec.CheckIn, rec.CheckOut = checkIn.Time, checkOut.Time
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("attendance", err)
	}
	return out, nil
}

const leaveSelect = `
		select lr.id, lr.employee_id, coalesce(lr.leave_type_id::text, ''), coalesce(lt.name, ''),
			lr.start_date, lr.end_date, lr.status, coalesce(lr.reason, ''), lr.created_at,
			coalesce(lr.days_requested, 0), coalesce(lr.approved_by::text, ''), lr.approved_at,
			coalesce(lr.rejection_reason, '')
		from leave_requests lr
		left join leave_types lt on lt.id = lr.leave_type_id`

func scanLeave(row rowScanner) (hr.LeaveRequest, error) {
	var (
		lr         hr.LeaveRequest
		approvedAt sql.NullTime
	)
	if err := row.Scan(&lr.ID, &lr.EmployeeID, &lr.LeaveTypeID, &lr.LeaveType,
		&lr.StartDate, &lr.EndDate, &lr.Status, &lr.Reason, &lr.CreatedAt,
		&lr.DaysRequested, &lr.ApprovedBy, &approvedAt, &lr.RejectionReason); err != nil {
		return hr.LeaveRequest{}, err
	}
	lr.ApprovedAt = approvedAt.Time
	return lr, nil
}

func (s *Store) CountAttendance(ctx context.Context, filters ...hr.Filter) (int, error) {
	return s.count(ctx, attendanceTable, "attendance", filters)
}

func (s *Store) LeaveRequests(ctx context.Context, q hr.Query) ([]hr.LeaveRequest, error) {
	query, args, err := leaveRequestsTable.build(leaveSelect, q, nil)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("leave_requests", err)
	}
	defer rows.Close()

	var out []hr.LeaveRequest
	for rows.Next() {
		lr, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("leave_requests", err)
	}
	return out, nil
}

func (s *Store) CountLeaveRequests(ctx context.Context, filters ...hr.Filter) (int, error) {
	return s.count(ctx, leaveRequestsTable, "leave_requests lr", filters)
}

func (s *Store) FindLeaveRequest(ctx context.Context, id string) (hr.LeaveRequest, error) {
	if id == "" {
		return hr.LeaveRequest{}, hr.ErrNotFound
	}
	lr, err := scanLeave(s.db.QueryRowContext(ctx, leaveSelect+` where lr.id = $1`, id))
	if err != nil {
		return hr.LeaveRequest{}, mapErr("leave_requests", err)
	}
	return lr, nil
}

// CreateLeaveRequest inserts lr as pending. An unknown employee or leave
// type answers hr.ErrNotFound.
func (s *Store) CreateLeaveRequest(ctx context.Context, lr hr.LeaveRequest) (hr.LeaveRequest, error) {
	if lr.EmployeeID == "" || lr.LeaveTypeID == "" {
		return hr.LeaveRequest{}, fmt.Errorf("%w: employee and leave type are required", hr.ErrInvalidQuery)
	}
	if lr.DaysRequested == 0 {
		lr.DaysRequested = hr.LeaveDays(lr.StartDate, lr.EndDate)
	}
	lr.Status = hr.LeavePending
	err := s.db.QueryRowContext(ctx, `
		insert into leave_requests (employee_id, leave_type_id, start_date, end_date, days_requested, reason, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, created_at
	`, lr.EmployeeID, lr.LeaveTypeID, lr.StartDate, lr.EndDate, lr.DaysRequested, nullIfEmpty(lr.Reason), lr.Status).
		Scan(&lr.ID, &lr.CreatedAt)
	if err != nil {
		return hr.LeaveRequest{}, mapErr("leave_requests", err)
	}
	return lr, nil
}

// DecideLeaveRequest records d on a pending request. The status guard in the
// update makes concurrent reviews safe: the loser gets hr.ErrConflict.
func (s *Store) DecideLeaveRequest(ctx context.Context, id string, d hr.LeaveDecision) (hr.LeaveRequest, error) {
	if d.Status != hr.LeaveApproved && d.Status != hr.LeaveRejected {
		return hr.LeaveRequest{}, fmt.Errorf("%w: cannot move a request to %q", hr.ErrInvalidQuery, d.Status)
	}
	res, err := s.db.ExecContext(ctx, `
		update leave_requests set status = $2, approved_by = $3, approved_at = $4, rejection_reason = $5
		where id = $1 and status = 'pending'
	`, id, d.Status, nullIfEmpty(d.ReviewerID), nullTime(d.At), nullIfEmpty(d.Reason))
	if err != nil {
		return hr.LeaveRequest{}, mapErr("leave_requests", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return hr.LeaveRequest{}, mapErr("leave_requests", err)
	}
	lr, err := s.FindLeaveRequest(ctx, id)
	if err != nil {
		return hr.LeaveRequest{}, err
	}
	if n == 0 {
		return lr, fmt.Errorf("%w: request is %s", hr.ErrConflict, lr.Status)
	}
	return lr, nil
}

func (s *Store) LeaveTypes(ctx context.Context, activeOnly bool) ([]hr.LeaveType, error) {
	query := `select id, name, days_allowed, is_active from leave_types`
	if activeOnly {
		query += ` where is_active`
	}
	query += ` order by name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapErr("leave_types", err)
	}
	defer rows.Close()

	var out []hr.LeaveType
	for rows.Next() {
		var lt hr.LeaveType
		if err := rows.Scan(&lt.ID, &lt.Name, &lt.DaysAllowed, &lt.IsActive); err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("leave_types", err)
	}
	return out, nil
}
