package hr

import (
	"context"
	"errors"
	"strings"
)

// Identity is what the session store knows about a user.
type Identity struct {
	ID       string
	Email    string
	Metadata map[string]any
}

func (i Identity) meta(key, fallback string) string {
	if v, ok := i.Metadata[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// Source tells whether an effective profile came from the store.
type Source string

const (
	SourceFound       Source = "found"
	SourceSynthesized Source = "synthesized"
)

// EffectiveProfile is the profile a page renders with.
type EffectiveProfile struct {
	Profile
	Source Source `json:"source"`
	// Cause is the lookup error that forced synthesis, if any.
	Cause error `json:"-"`
}

// Found reports whether the profile is backed by a stored row.
func (e EffectiveProfile) Found() bool { return e.Source == SourceFound }

// Synthesize builds the fallback profile for id. The role is always
// RoleEmployee: session metadata is user-editable and never grants a role.
func Synthesize(id Identity) Profile {
	return Profile{
		ID:         id.ID,
		Email:      id.Email,
		FirstName:  id.meta("first_name", "User"),
		LastName:   id.meta("last_name", ""),
		Department: id.meta("department", "Engineering"),
		Position:   id.meta("position", "Employee"),
		Role:       RoleEmployee,
		Status:     StatusActive,
	}
}

// ResolveProfile loads the stored profile for id, falling back to a
// synthesized one when the row is missing or the store fails.
func ResolveProfile(ctx context.Context, store ProfileStore, id Identity) EffectiveProfile {
	if store == nil {
		return EffectiveProfile{Profile: Synthesize(id), Source: SourceSynthesized, Cause: errors.New("profile store unavailable")}
	}
	p, err := store.FindProfile(ctx, id.ID)
	if err != nil {
		return EffectiveProfile{Profile: Synthesize(id), Source: SourceSynthesized, Cause: err}
	}
	if p.Email == "" {
		p.Email = id.Email
	}
	return EffectiveProfile{Profile: p, Source: SourceFound}
}
