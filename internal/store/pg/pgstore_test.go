package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"hrportal.org/internal/hr"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

var profileCols = []string{"id", "email", "first_name", "last_name", "role", "department", "position", "status",
	"manager_id", "hire_date", "phone", "address", "avatar_url", "created_at",
	"emergency_contact_name", "emergency_contact_phone"}

var leaveCols = []string{"id", "employee_id", "leave_type_id", "name", "start_date", "end_date", "status", "reason",
	"created_at", "days_requested", "approved_by", "approved_at", "rejection_reason"}

func TestFindProfile(t *testing.T) {
	s, mock := newMock(t)
	hired := time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`select id, email, first_name.*from profiles where id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(profileCols).AddRow(
			"u-1", "jane@example.com", "Jane", "Doe", "team_lead", "Engineering", "Lead", "active",
			"u-9", hired, nil, nil, nil, hired, nil, nil,
		))

	p, err := s.FindProfile(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("FindProfile: %v", err)
	}
	if p.Role != hr.RoleTeamLead || p.FullName() != "Jane Doe" || p.ManagerID != "u-9" || !p.HireDate.Equal(hired) {
		t.Fatalf("unexpected profile %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindProfileUnknownRoleAndMissingRow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`from profiles where id`).WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows(profileCols).AddRow(
			"u-2", "x@example.com", nil, nil, "ceo", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectQuery(`from profiles where id`).WithArgs("u-3").
		WillReturnRows(sqlmock.NewRows(profileCols))

	p, err := s.FindProfile(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("FindProfile: %v", err)
	}
	if p.Role != hr.RoleEmployee || p.Status != hr.StatusActive {
		t.Fatalf("unknown role must degrade to employee, got %+v", p)
	}
	if _, err := s.FindProfile(context.Background(), "u-3"); !errors.Is(err, hr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindProfile(context.Background(), ""); !errors.Is(err, hr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListProfilesBuildsFilters(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		`from profiles where manager_id = $1 and status = $2 order by last_name, first_name limit $3`)).
		WithArgs("lead-1", "active", 1000).
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow("u-1", "a@example.com", "A", "One", "employee", nil, nil, "active", "lead-1", nil, nil, nil, nil, nil, nil, nil).
			AddRow("u-2", "b@example.com", "B", "Two", "employee", nil, nil, "active", "lead-1", nil, nil, nil, nil, nil, nil, nil))

	got, err := s.ListProfiles(context.Background(), hr.Query{
		Filters: []hr.Filter{hr.Eq("manager_id", "lead-1"), hr.Eq("status", hr.StatusActive)},
	})
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(got) != 2 || got[1].ID != "u-2" {
		t.Fatalf("unexpected profiles %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestQueryBuilder(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	q, args, err := leaveRequestsTable.build("select 1 from leave_requests lr", hr.Query{
		Filters: []hr.Filter{
			hr.In("employee_id", []string{"a", "b"}),
			hr.Gte("start_date", since),
			hr.Eq("status", "pending"),
		},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   5,
	}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "select 1 from leave_requests lr where lr.employee_id in ($1, $2) and lr.start_date >= $3 and lr.status = $4 order by lr.created_at desc limit $5"
	if q != want {
		t.Fatalf("unexpected query:\n got %s\nwant %s", q, want)
	}
	if len(args) != 5 || args[0] != "a" || args[4] != 5 {
		t.Fatalf("unexpected args %v", args)
	}

	q, _, err = attendanceTable.build("select 1 from attendance", hr.Query{Filters: []hr.Filter{hr.In("employee_id", nil)}}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if q != "select 1 from attendance where false order by date limit $1" {
		t.Fatalf("empty in-list must match nothing, got %s", q)
	}

	for _, bad := range []hr.Query{
		{Filters: []hr.Filter{hr.Eq("salary; drop table profiles", 1)}},
		{OrderBy: "password"},
		{Filters: []hr.Filter{{Column: "status", Op: "like", Value: "%"}}},
		{Filters: []hr.Filter{{Column: "status", Op: hr.OpIn, Value: "active"}}},
	} {
		if _, _, err := profilesTable.build("select 1 from profiles", bad, nil); !errors.Is(err, hr.ErrInvalidQuery) {
			t.Fatalf("expected ErrInvalidQuery for %+v, got %v", bad, err)
		}
	}
}

func TestMissingTableMapsToSentinel(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`from leave_requests lr`).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "leave_requests" does not exist`})

	_, err := s.LeaveRequests(context.Background(), hr.Query{Filters: []hr.Filter{hr.Eq("employee_id", "u-1")}, Limit: 5})
	if !errors.Is(err, hr.ErrTableMissing) {
		t.Fatalf("expected ErrTableMissing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAttendanceAndLeaves(t *testing.T) {
	s, mock := newMock(t)
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`from attendance where employee_id = \$1 and date >= \$2`).
		WithArgs("u-1", day, 1000).
		WillReturnRows(sqlmock.NewRows([]string{"id", "employee_id", "date", "status", "check_in", "check_out"}).
			AddRow("a-1", "u-1", day, "present", day.Add(9*time.Hour), nil))
	mock.ExpectQuery(`from leave_requests lr`).
		WithArgs("u-1", 5).
		WillReturnRows(sqlmock.NewRows(leaveCols).
			AddRow("l-1", "u-1", "t-1", "Annual", day, day, "pending", "", day, 1, "", nil, ""))
	mock.ExpectQuery(`select id, name, days_allowed, is_active from leave_types where is_active order by name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "days_allowed", "is_active"}).AddRow("t-1", "Annual", 20, true))

	att, err := s.Attendance(context.Background(), hr.Query{Filters: []hr.Filter{hr.Eq("employee_id", "u-1"), hr.Gte("date", day)}})
	if err != nil {
		t.Fatalf("Attendance: %v", err)
	}
	if len(att) != 1 || att[0].CheckIn.IsZero() || !att[0].CheckOut.IsZero() {
		t.Fatalf("unexpected attendance %+v", att)
	}
	leaves, err := s.LeaveRequests(context.Background(), hr.Query{Filters: []hr.Filter{hr.Eq("employee_id", "u-1")}, OrderBy: "created_at", Desc: true, Limit: 5})
	if err != nil {
		t.Fatalf("LeaveRequests: %v", err)
	}
	if len(leaves) != 1 || leaves[0].LeaveType != "Annual" {
		t.Fatalf("unexpected leaves %+v", leaves)
	}
	types, err := s.LeaveTypes(context.Background(), true)
	if err != nil {
		t.Fatalf("LeaveTypes: %v", err)
	}
	if len(types) != 1 || types[0].DaysAllowed != 20 {
		t.Fatalf("unexpected types %+v", types)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateProfile(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`insert into profiles .* on conflict \(id\) do nothing`).
		WithArgs("u-1", "jane@example.com", "Jane", "Doe", "employee", "Engineering", "Employee", "active",
			nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateProfile(context.Background(), hr.Profile{
		ID: "u-1", Email: "jane@example.com", FirstName: "Jane", LastName: "Doe",
		Role: hr.RoleEmployee, Department: "Engineering", Position: "Employee",
	})
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := s.CreateProfile(context.Background(), hr.Profile{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountsAreNotCapped(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from profiles where status = $1`)).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2500))
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from profiles`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2600))
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from leave_requests lr where lr.status = $1`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from attendance where date = $1 and status = $2`)).
		WithArgs(day, "present").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1200))

	ctx := context.Background()
	if n, err := s.CountProfiles(ctx, hr.Eq("status", hr.StatusActive)); err != nil || n != 2500 {
		t.Fatalf("CountProfiles(active) = %d, %v", n, err)
	}
	if n, err := s.CountProfiles(ctx); err != nil || n != 2600 {
		t.Fatalf("CountProfiles() = %d, %v", n, err)
	}
	if n, err := s.CountLeaveRequests(ctx, hr.Eq("status", hr.LeavePending)); err != nil || n != 7 {
		t.Fatalf("CountLeaveRequests = %d, %v", n, err)
	}
	if n, err := s.CountAttendance(ctx, hr.Eq("date", day), hr.Eq("status", "present")); err != nil || n != 1200 {
		t.Fatalf("CountAttendance = %d, %v", n, err)
	}
	if _, err := s.CountProfiles(ctx, hr.Eq("password", "x")); !errors.Is(err, hr.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`update profiles set first_name = \$2.*where id = \$1\s+returning id, email`).
		WithArgs("u-1", "Janet", "Doe", "555-0100", nil, "Sam", nil).
		WillReturnRows(sqlmock.NewRows(profileCols).AddRow(
			"u-1", "jane@example.com", "Janet", "Doe", "employee", nil, nil, "active",
			nil, nil, "555-0100", nil, nil, nil, "Sam", nil,
		))
	mock.ExpectQuery(`update profiles set`).WithArgs("u-2", "A", "B", nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(profileCols))

	p, err := s.UpdateProfile(context.Background(), "u-1", hr.ProfileUpdate{
		FirstName: "Janet", LastName: "Doe", Phone: "555-0100", Address: "  ", EmergencyContactName: "Sam",
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.FirstName != "Janet" || p.Phone != "555-0100" || p.EmergencyContactName != "Sam" || p.Role != hr.RoleEmployee {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := s.UpdateProfile(context.Background(), "u-2", hr.ProfileUpdate{FirstName: "A", LastName: "B"}); !errors.Is(err, hr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateLeaveRequest(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`insert into leave_requests .* returning id, created_at`).
		WithArgs("u-1", "t-1", start, end, 5, "Family trip", hr.LeavePending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("l-9", created))
	mock.ExpectQuery(`insert into leave_requests`).
		WithArgs("u-1", "t-missing", start, start, 1, "x", hr.LeavePending).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})

	lr, err := s.CreateLeaveRequest(context.Background(), hr.LeaveRequest{
		EmployeeID: "u-1", LeaveTypeID: "t-1", StartDate: start, EndDate: end, Reason: "Family trip",
	})
	if err != nil {
		t.Fatalf("CreateLeaveRequest: %v", err)
	}
	if lr.ID != "l-9" || lr.Status != hr.LeavePending || lr.DaysRequested != 5 || !lr.CreatedAt.Equal(created) {
		t.Fatalf("unexpected request %+v", lr)
	}
	_, err = s.CreateLeaveRequest(context.Background(), hr.LeaveRequest{
		EmployeeID: "u-1", LeaveTypeID: "t-missing", StartDate: start, EndDate: start, Reason: "x",
	})
	if !errors.Is(err, hr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown leave type, got %v", err)
	}
	if _, err := s.CreateLeaveRequest(context.Background(), hr.LeaveRequest{EmployeeID: "u-1"}); !errors.Is(err, hr.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecideLeaveRequest(t *testing.T) {
	s, mock := newMock(t)
	day := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`update leave_requests set status = \$2.*where id = \$1 and status = 'pending'`).
		WithArgs("l-1", hr.LeaveRejected, "lead-1", at, "Short staffed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`from leave_requests lr .* where lr.id = \$1`).WithArgs("l-1").
		WillReturnRows(sqlmock.NewRows(leaveCols).
			AddRow("l-1", "u-1", "t-1", "Annual", day, day, "rejected", "trip", day, 1, "lead-1", at, "Short staffed"))

	// Second reviewer loses the race.
	mock.ExpectExec(`update leave_requests set status`).
		WithArgs("l-1", hr.LeaveApproved, "lead-2", at, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`where lr.id = \$1`).WithArgs("l-1").
		WillReturnRows(sqlmock.NewRows(leaveCols).
			AddRow("l-1", "u-1", "t-1", "Annual", day, day, "rejected", "trip", day, 1, "lead-1", at, "Short staffed"))

	lr, err := s.DecideLeaveRequest(context.Background(), "l-1", hr.LeaveDecision{
		Status: hr.LeaveRejected, ReviewerID: "lead-1", Reason: "Short staffed", At: at,
	})
	if err != nil {
		t.Fatalf("DecideLeaveRequest: %v", err)
	}
	if lr.Status != hr.LeaveRejected || lr.ApprovedBy != "lead-1" || !lr.ApprovedAt.Equal(at) || lr.RejectionReason != "Short staffed" {
		t.Fatalf("unexpected request %+v", lr)
	}

	_, err = s.DecideLeaveRequest(context.Background(), "l-1", hr.LeaveDecision{Status: hr.LeaveApproved, ReviewerID: "lead-2", At: at})
	if !errors.Is(err, hr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.DecideLeaveRequest(context.Background(), "l-1", hr.LeaveDecision{Status: hr.LeavePending}); !errors.Is(err, hr.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
