package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v (%s)", err, line)
	}
	return entry
}

func TestAuthEntryCarriesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "user-9")
	logger.Auth(ctx, "login_success", Fields{"email": "a@b.co"})

	entry := decodeLine(t, &buf)
	for key, want := range map[string]string{
		"level":      "info",
		"msg":        "Auth: login_success",
		"component":  "Authentication",
		"action":     "login_success",
		"request_id": "req-1",
		"user_id":    "user-9",
	} {
		if entry[key] != want {
			t.Fatalf("%s=%v, want %q", key, entry[key], want)
		}
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["email"] != "a@b.co" {
		t.Fatalf("unexpected fields: %v", entry["fields"])
	}
}

func TestSensitiveFieldsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false)

	logger.Info(context.Background(), "form", Fields{
		"Password":      "hunter2",
		"refresh_token": "r",
		"nested":        map[string]any{"code": "abc", "ok": "yes"},
		"long":          strings.Repeat("x", 1200),
	})

	entry := decodeLine(t, &buf)
	fields := entry["fields"].(map[string]any)
	if fields["Password"] != "[REDACTED]" || fields["refresh_token"] != "[REDACTED]" {
		t.Fatalf("credentials leaked: %v", fields)
	}
	nested := fields["nested"].(map[string]any)
	if nested["code"] != "[REDACTED]" || nested["ok"] != "yes" {
		t.Fatalf("nested map not sanitized: %v", nested)
	}
	long := fields["long"].(string)
	if !strings.HasSuffix(long, "...[TRUNCATED]") || len(long) != 1000+len("...[TRUNCATED]") {
		t.Fatalf("long value not truncated: %d", len(long))
	}
}

func TestDebugSuppressedOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, false).Database(context.Background(), "select_start", "profiles", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected debug entry to be dropped, got %q", buf.String())
	}

	NewLogger(&buf, true).Database(context.Background(), "select_start", "profiles", nil)
	if !strings.Contains(buf.String(), "[DEBUG]") || !strings.Contains(buf.String(), "profiles") {
		t.Fatalf("expected coloured debug line, got %q", buf.String())
	}
}

func TestExceptionIncludesError(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, false).Exception(context.Background(), errors.New("boom"), "AuthCallback", "exchange", nil)
	entry := decodeLine(t, &buf)
	if entry["level"] != "error" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["fields"].(map[string]any)["error"] != "boom" {
		t.Fatalf("missing error field: %v", entry["fields"])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info(context.Background(), "ignored", nil)
}
