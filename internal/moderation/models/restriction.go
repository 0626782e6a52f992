package models

import (
	"fmt"
	"strings"
	"time"

	dErrors "nucleus/pkg/domain-errors"
)

// SubjectID is the stable identity of a punished or tracked player.
type SubjectID string

func (s SubjectID) String() string { return string(s) }

// Validate rejects identities that cannot be used as store or cache keys.
func (s SubjectID) Validate() error {
	if strings.TrimSpace(string(s)) == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if len(s) > 128 {
		return dErrors.New(dErrors.CodeValidation, "subject exceeds 128 characters")
	}
	return nil
}

// Subject carries the identity plus best-effort, possibly stale, attributes.
type Subject struct {
	ID          SubjectID `json:"id"`
	Name        string    `json:"name,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Kind is the type of moderation decision.
type Kind string

const (
	KindMute Kind = "mute"
	KindKick Kind = "kick"
	KindBan  Kind = "ban"
)

// ParseKind accepts the lowercase kind names.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown restriction kind %q", s))
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindMute, KindKick, KindBan:
		return true
	}
	return false
}

// Severity orders kinds so the most restrictive decision wins a lookup.
func (k Kind) Severity() int {
	switch k {
	case KindBan:
		return 3
	case KindKick:
		return 2
	case KindMute:
		return 1
	}
	return 0
}

// Scope is either fleet-wide or bound to a single server.
type Scope string

const (
	ScopeFleet Scope = "fleet"

	serverScopePrefix = "server:"
)

// ServerScope returns the scope for a single server.
func ServerScope(serverID string) Scope {
	return Scope(serverScopePrefix + serverID)
}

// ParseScope accepts "fleet", "server:<id>" or a bare server id.
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == string(ScopeFleet):
		return ScopeFleet, nil
	case strings.HasPrefix(s, serverScopePrefix):
		if len(s) == len(serverScopePrefix) {
			return "", dErrors.New(dErrors.CodeValidation, "server scope requires a server id")
		}
		return Scope(s), nil
	default:
		return ServerScope(s), nil
	}
}

func (s Scope) IsFleet() bool { return s == ScopeFleet }

// ServerID returns the server a scope is bound to, empty for fleet scope.
func (s Scope) ServerID() string {
	if s.IsFleet() {
		return ""
	}
	return strings.TrimPrefix(string(s), serverScopePrefix)
}

// Covers reports whether a restriction in scope s applies to a check made in scope other.
// Fleet-wide restrictions apply everywhere.
func (s Scope) Covers(other Scope) bool {
	return s.IsFleet() || s == other
}

func (s Scope) Valid() bool {
	if s.IsFleet() {
		return true
	}
	return strings.HasPrefix(string(s), serverScopePrefix) && len(s) > len(serverScopePrefix)
}

// Key identifies the slot a restriction occupies; revisions are ordered per key.
type Key struct {
	Subject SubjectID
	Kind    Kind
	Scope   Scope
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Subject, k.Kind, k.Scope)
}

// Restriction is a moderation decision. Revision increases monotonically per
// Key; a revoked restriction is a tombstone kept for revision gating and history.
type Restriction struct {
	Subject   Subject    `json:"subject"`
	Kind      Kind       `json:"kind"`
	Scope     Scope      `json:"scope"`
	Reason    string     `json:"reason"`
	Actor     string     `json:"actor"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revision  uint64     `json:"revision"`
	Revoked   bool       `json:"revoked,omitempty"`
}

func (r *Restriction) Key() Key {
	return Key{Subject: r.Subject.ID, Kind: r.Kind, Scope: r.Scope}
}

// IsPermanent reports whether the restriction has no expiry.
func (r *Restriction) IsPermanent() bool {
	return r.ExpiresAt == nil
}

// IsExpiredAt reports whether the expiry is at or before now.
func (r *Restriction) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// IsActiveAt reports whether the restriction currently restricts its subject.
func (r *Restriction) IsActiveAt(now time.Time) bool {
	return !r.Revoked && !r.IsExpiredAt(now)
}

// Remaining returns the time left before expiry, zero when expired or permanent.
func (r *Restriction) Remaining(now time.Time) time.Duration {
	if r.ExpiresAt == nil || !r.ExpiresAt.After(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Supersedes reports whether r should replace other for the same key.
func (r *Restriction) Supersedes(other *Restriction) bool {
	return other == nil || r.Revision > other.Revision
}

// Validate checks the fields required before a restriction enters the pipeline.
func (r *Restriction) Validate() error {
	if err := r.Subject.ID.Validate(); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown restriction kind %q", r.Kind))
	}
	if !r.Scope.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid scope %q", r.Scope))
	}
	if strings.TrimSpace(r.Actor) == "" {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if r.ExpiresAt != nil && !r.CreatedAt.IsZero() && !r.ExpiresAt.After(r.CreatedAt) {
		return dErrors.New(dErrors.CodeValidation, "expiry must be after creation")
	}
	return nil
}

// MostSevere picks the restriction with the highest kind severity, preferring
// the most recently created among equals. Revisions are per key and do not
// order restrictions of different scopes. Returns nil for an empty slice.
func MostSevere(restrictions []Restriction) *Restriction {
	var best *Restriction
	for i := range restrictions {
		r := &restrictions[i]
		if best == nil ||
			r.Kind.Severity() > best.Kind.Severity() ||
			(r.Kind.Severity() == best.Kind.Severity() && r.CreatedAt.After(best.CreatedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// FilterActive returns the restrictions active at now.
func FilterActive(restrictions []Restriction, now time.Time) []Restriction {
	out := make([]Restriction, 0, len(restrictions))
	for _, r := range restrictions {
		if r.IsActiveAt(now) {
			out = append(out, r)
		}
	}
	return out
}
