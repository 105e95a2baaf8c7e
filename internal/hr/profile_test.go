package hr

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubProfiles answers FindProfile only; ResolveProfile needs nothing else.
type stubProfiles struct {
	ProfileStore
	profile Profile
	err     error
}

func (s stubProfiles) FindProfile(ctx context.Context, id string) (Profile, error) {
	return s.profile, s.err
}

func TestResolveProfileFound(t *testing.T) {
	store := stubProfiles{profile: Profile{ID: "u1", FirstName: "Ada", Role: RoleHRAdmin}}
	got := ResolveProfile(context.Background(), store, Identity{ID: "u1", Email: "ada@example.com"})
	if !got.Found() || got.Role != RoleHRAdmin {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if got.Email != "ada@example.com" {
		t.Fatalf("expected email backfilled from identity, got %q", got.Email)
	}
}

func TestResolveProfileMissingRowSynthesizes(t *testing.T) {
	store := stubProfiles{err: ErrNotFound}
	got := ResolveProfile(context.Background(), store, Identity{ID: "u2", Email: "x@example.com"})
	if got.Found() {
		t.Fatalf("expected synthesized profile")
	}
	if got.FirstName != "User" || got.Role != RoleEmployee {
		t.Fatalf("unexpected fallback: %+v", got.Profile)
	}
	if !errors.Is(got.Cause, ErrNotFound) {
		t.Fatalf("expected cause to be kept, got %v", got.Cause)
	}
}

func TestSynthesizeIgnoresMetadataRole(t *testing.T) {
	p := Synthesize(Identity{ID: "u3", Metadata: map[string]any{
		"first_name": "Grace",
		"department": "Ops",
		"role":       "super_admin",
	}})
	if p.Role != RoleEmployee {
		t.Fatalf("metadata must not grant a role, got %v", p.Role)
	}
	if p.FirstName != "Grace" || p.Department != "Ops" || p.Position != "Employee" {
		t.Fatalf("unexpected synthesized profile: %+v", p)
	}
}

func TestResolveProfileWithoutStore(t *testing.T) {
	got := ResolveProfile(context.Background(), nil, Identity{ID: "u4"})
	if got.Source != SourceSynthesized || got.Cause == nil {
		t.Fatalf("expected synthesized profile with cause, got %+v", got)
	}
}

func TestLeaveDays(t *testing.T) {
	day := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		start, end time.Time
		want       int
	}{
		{day(4, 7), day(4, 7), 1},
		{day(4, 7), day(4, 11), 5},
		{day(2, 27), day(3, 2), 4},
		{day(4, 11), day(4, 7), 0},
		// Time of day is ignored.
		{day(4, 7).Add(23 * time.Hour), day(4, 8), 2},
	}
	for _, tc := range cases {
		if got := LeaveDays(tc.start, tc.end); got != tc.want {
			t.Fatalf("LeaveDays(%s, %s) = %d, want %d", tc.start, tc.end, got, tc.want)
		}
	}
}
