package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Fields carries structured attributes of a log entry.
type Fields map[string]any

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

var levelColors = map[Level]string{
	LevelDebug: "\x1b[36m",
	LevelInfo:  "\x1b[32m",
	LevelWarn:  "\x1b[33m",
	LevelError: "\x1b[31m",
}

const colorReset = "\x1b[0m"

const maxFieldLen = 1000

var sensitiveKeys = map[string]struct{}{
	"password":         {},
	"confirm_password": {},
	"current_password": {},
	"new_password":     {},
	"token":            {},
	"access_token":     {},
	"refresh_token":    {},
	"api_key":          {},
	"apikey":           {},
	"secret":           {},
	"key":              {},
	"authorization":    {},
	"code":             {},
	"code_verifier":    {},
}

// Logger writes structured entries: JSON lines in production, coloured
// single lines in development. It is passed to handlers explicitly.
type Logger struct {
	out *log.Logger
	dev bool
	min Level
	now func() time.Time
}

// NewLogger builds a logger writing to w. Development mode enables debug
// entries and the human-readable format.
func NewLogger(w io.Writer, dev bool) *Logger {
	if w == nil {
		w = os.Stdout
	}
	min := LevelInfo
	if dev {
		min = LevelDebug
	}
	return &Logger{out: log.New(w, "", 0), dev: dev, min: min, now: time.Now}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger(io.Discard, false)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, LevelDebug, msg, "", "", fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, LevelInfo, msg, "", "", fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, LevelWarn, msg, "", "", fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, LevelError, msg, "", "", fields)
}

// Auth records an authentication event.
func (l *Logger) Auth(ctx context.Context, action string, fields Fields) {
	l.emit(ctx, LevelInfo, "Auth: "+action, "Authentication", action, fields)
}

// Middleware records a session middleware event for path.
func (l *Logger) Middleware(ctx context.Context, action, path string, fields Fields) {
	merged := Fields{"path": path}
	for k, v := range fields {
		merged[k] = v
	}
	l.emit(ctx, LevelDebug, "Middleware: "+action, "Middleware", action, merged)
}

// Database records a repository event against table.
func (l *Logger) Database(ctx context.Context, action, table string, fields Fields) {
	merged := Fields{"table": table}
	for k, v := range fields {
		merged[k] = v
	}
	l.emit(ctx, LevelDebug, "Database: "+action, "Database", action, merged)
}

// Navigation records a redirect or page transition.
func (l *Logger) Navigation(ctx context.Context, action, from, to string) {
	l.emit(ctx, LevelInfo, "Navigation: "+action, "Navigation", action, Fields{"from": from, "to": to})
}

// Exception records err raised by component while performing action.
func (l *Logger) Exception(ctx context.Context, err error, component, action string, fields Fields) {
	merged := Fields{}
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	l.emit(ctx, LevelError, "Exception: "+component+" - "+action, component, action, merged)
}

func (l *Logger) emit(ctx context.Context, level Level, msg, component, action string, fields Fields) {
	if l == nil || level < l.min {
		return
	}
	entry := map[string]any{
		"ts":    l.now().UTC().Format(time.RFC3339Nano),
		"level": level.String(),
		"msg":   msg,
	}
	if component != "" {
		entry["component"] = component
	}
	if action != "" {
		entry["action"] = action
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if uid := UserIDFromContext(ctx); uid != "" {
		entry["user_id"] = uid
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		entry["trace_id"] = sc.TraceID().String()
	}
	if len(fields) > 0 {
		entry["fields"] = Sanitize(fields)
	}

	if l.dev {
		rest, _ := json.Marshal(entry["fields"])
		l.out.Printf("%s[%s]%s %s - %s %s", levelColors[level], strings.ToUpper(level.String()), colorReset, entry["ts"], msg, rest)
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.out.Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	l.out.Println(string(data))
}

// Sanitize returns a copy of fields with credentials redacted and oversized
// strings truncated. Nested maps are sanitized as well.
func Sanitize(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		if len(t) > maxFieldLen {
			return t[:maxFieldLen] + "...[TRUNCATED]"
		}
		return t
	case Fields:
		return Sanitize(t)
	case map[string]any:
		return Sanitize(Fields(t))
	case error:
		return sanitizeValue(t.Error())
	case fmt.Stringer:
		return sanitizeValue(t.String())
	default:
		return v
	}
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// WithRequestID attaches the request identifier used in every log entry.
func WithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithUserID attaches the authenticated user id used in every log entry.
func WithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the user id, if any.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userIDKey).(string)
	return v
}
