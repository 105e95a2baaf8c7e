package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hrportal.org/internal/audit"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/obs"
)

const (
	dateLayout      = "2006-01-02"
	decisionApprove = "approve"
	decisionReject  = "reject"
)

// handleProfile renders the profile section and takes edits to the caller's
// own row.
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.handleDashboardSection(w, r)
	case http.MethodPost:
		a.updateProfile(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// updateProfile writes the self-service fields. The row is always the
// caller's; role, status and manager are not in the form and an attempt to
// send them is rejected as an unknown field.
func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	u, _, ok := a.authorize(w, r, hr.SectionProfile)
	if !ok {
		return
	}
	var req profileForm
	if !a.readForm(w, r, &req) {
		return
	}
	if a.profiles == nil {
		writeErrorCode(w, r, http.StatusServiceUnavailable, databaseSetupCode, "profile storage is not configured")
		return
	}
	ctx := r.Context()
	p, err := a.profiles.UpdateProfile(ctx, u.ID, hr.ProfileUpdate{
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		Phone:                 strings.TrimSpace(req.Phone),
		Address:               strings.TrimSpace(req.Address),
		EmergencyContactName:  strings.TrimSpace(req.EmergencyContactName),
		EmergencyContactPhone: strings.TrimSpace(req.EmergencyContactPhone),
	})
	if err != nil {
		a.writeStoreError(w, r, "update_profile", err)
		return
	}
	a.record(ctx, audit.EventProfileUpdated, map[string]any{"profile_id": u.ID})
	writeJSON(w, http.StatusOK, p)
}

type leaveFormView struct {
	pageView
	LeaveTypes []hr.LeaveType `json:"leave_types"`
}

func (a *API) handleNewLeave(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.leaveFormPage(w, r)
	case http.MethodPost:
		a.submitLeave(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) leaveFormPage(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	view := leaveFormView{pageView: a.chrome(r, a.profileFor(ctx, u)), LeaveTypes: []hr.LeaveType{}}
	if a.activity != nil {
		types, err := a.activity.LeaveTypes(ctx, true)
		if err != nil {
			a.log.Warn(ctx, "leave types unavailable", obs.Fields{"error": err})
		} else if types != nil {
			view.LeaveTypes = types
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// submitLeave files a pending request for the caller. A stored profile is
// required because the request row references it.
func (a *API) submitLeave(w http.ResponseWriter, r *http.Request) {
	u, _, ok := a.authorize(w, r, hr.SectionLeaves)
	if !ok {
		return
	}
	var req leaveForm
	if !a.readForm(w, r, &req) {
		return
	}
	// Both parse: the validator checked the layout.
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	if end.Before(start) {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_input", "end_date must be on or after start_date")
		return
	}
	if a.activity == nil {
		writeErrorCode(w, r, http.StatusServiceUnavailable, databaseSetupCode, "leave storage is not configured")
		return
	}
	ctx := r.Context()
	lr, err := a.activity.CreateLeaveRequest(ctx, hr.LeaveRequest{
		EmployeeID:    u.ID,
		LeaveTypeID:   req.LeaveTypeID,
		StartDate:     start,
		EndDate:       end,
		DaysRequested: hr.LeaveDays(start, end),
		Reason:        strings.TrimSpace(req.Reason),
	})
	if err != nil {
		a.writeStoreError(w, r, "create_leave_request", err)
		return
	}
	a.record(ctx, audit.EventLeaveRequested, map[string]any{
		"leave_request_id": lr.ID,
		"leave_type_id":    lr.LeaveTypeID,
		"days":             lr.DaysRequested,
	})
	writeJSON(w, http.StatusCreated, lr)
}

// handleLeaveReview lets a team lead approve or reject a pending request of
// someone who reports to them. Holding the team section is not enough: the
// request's employee must name the caller as manager.
func (a *API) handleLeaveReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	u, _, ok := a.authorize(w, r, hr.SectionTeam)
	if !ok {
		return
	}
	var req leaveReviewForm
	if !a.readForm(w, r, &req) {
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Decision == decisionReject && reason == "" {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_input", "reason is required")
		return
	}
	if a.activity == nil || a.profiles == nil {
		writeErrorCode(w, r, http.StatusServiceUnavailable, databaseSetupCode, "leave storage is not configured")
		return
	}
	ctx := r.Context()
	id := r.PathValue("id")

	lr, err := a.activity.FindLeaveRequest(ctx, id)
	if err != nil {
		a.writeStoreError(w, r, "find_leave_request", err)
		return
	}
	owner, err := a.profiles.FindProfile(ctx, lr.EmployeeID)
	if err != nil && !errors.Is(err, hr.ErrNotFound) {
		a.writeStoreError(w, r, "find_profile", err)
		return
	}
	if err != nil || owner.ManagerID != u.ID {
		a.record(ctx, audit.EventAccessDenied, map[string]any{
			"path":             r.URL.Path,
			"leave_request_id": id,
			"employee_id":      lr.EmployeeID,
		})
		a.log.Warn(ctx, "leave review outside team", obs.Fields{"leave_request_id": id, "employee_id": lr.EmployeeID})
		writeErrorCode(w, r, http.StatusForbidden, "forbidden", "this request is not from a member of your team")
		return
	}

	d := hr.LeaveDecision{Status: hr.LeaveApproved, ReviewerID: u.ID, At: a.now().UTC()}
	if req.Decision == decisionReject {
		d.Status, d.Reason = hr.LeaveRejected, reason
	}
	updated, err := a.activity.DecideLeaveRequest(ctx, id, d)
	if err != nil {
		a.writeStoreError(w, r, "decide_leave_request", err)
		return
	}
	a.record(ctx, audit.EventLeaveReviewed, map[string]any{
		"leave_request_id": id,
		"employee_id":      lr.EmployeeID,
		"status":           d.Status,
	})
	writeJSON(w, http.StatusOK, updated)
}

// writeStoreError maps repository sentinels onto HTTP answers.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, hr.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, hr.ErrConflict):
		writeErrorCode(w, r, http.StatusConflict, "conflict", "the request has already been reviewed")
	case errors.Is(err, hr.ErrInvalidQuery):
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_input", "invalid input")
	case errors.Is(err, hr.ErrTableMissing):
		writeErrorCode(w, r, http.StatusServiceUnavailable, databaseSetupCode, databaseSetupDescription)
	default:
		a.log.Exception(r.Context(), err, "Database", action, nil)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
