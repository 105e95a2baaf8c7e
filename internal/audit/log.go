// Package audit records security-relevant account events as JSON lines,
// separate from the operational log.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"hrportal.org/internal/obs"
)

const (
	EventSignIn          = "auth.sign_in"
	EventSignInFailed    = "auth.sign_in_failed"
	EventSignOut         = "auth.sign_out"
	EventRegister        = "auth.register"
	EventEmailConfirmed  = "auth.email_confirmed"
	EventPasswordChanged = "auth.password_changed"
	EventAccessDenied    = "access.denied"
	EventProfileUpdated  = "profile.updated"
	EventLeaveRequested  = "leave.requested"
	EventLeaveReviewed   = "leave.reviewed"
)

// Recorder writes audit entries. The zero value writes to stdout.
type Recorder struct {
	mu  sync.Mutex
	out *log.Logger
	now func() time.Time
}

// New returns a recorder writing to w.
func New(w io.Writer) *Recorder {
	if w == nil {
		w = os.Stdout
	}
	return &Recorder{out: log.New(w, "", 0), now: time.Now}
}

// LogEvent writes an audit entry enriched with the request and user id
// carried by ctx. Field values pass through the log redaction rules.
func (r *Recorder) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	if r == nil {
		return nil
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		r.out = log.New(os.Stdout, "", 0)
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	entry := map[string]any{
		"ts":     now().UTC().Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  event,
		"fields": obs.Sanitize(fields),
	}
	if rid := obs.RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if uid := obs.UserIDFromContext(ctx); uid != "" {
		entry["user_id"] = uid
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	r.out.Println(string(data))
	return nil
}
