// Package auth authenticates moderators and decides what they may apply.
//
// Moderators exchange an API key, checked against a bcrypt hash from
// configuration, for a short-lived JWT that carries their rights.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"nucleus/internal/moderation/models"
	dErrors "nucleus/pkg/domain-errors"
)

// Right is a permission carried in a moderator token.
type Right string

const (
	RightMute     Right = "mute"
	RightKick     Right = "kick"
	RightBan      Right = "ban"
	RightPardon   Right = "pardon"
	RightPresence Right = "presence"
)

// RightFor returns the right needed to apply a restriction of kind.
func RightFor(kind models.Kind) Right {
	return Right(kind)
}

func (r Right) Valid() bool {
	switch r {
	case RightMute, RightKick, RightBan, RightPardon, RightPresence:
		return true
	}
	return false
}

func ParseRights(names []string) ([]Right, error) {
	out := make([]Right, 0, len(names))
	for _, name := range names {
		r := Right(strings.ToLower(strings.TrimSpace(name)))
		if !r.Valid() {
			return nil, fmt.Errorf("unknown right %q", name)
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Principal is an authenticated moderator.
type Principal struct {
	Name   string
	Rights []Right
}

func (p *Principal) Has(r Right) bool {
	return p != nil && slices.Contains(p.Rights, r)
}

type contextKeyPrincipal struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, p)
}

// PrincipalFrom returns the principal stored by the auth middleware, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKeyPrincipal{}).(*Principal)
	return p
}

// Authorizer checks restriction applies against the rights of the principal
// in the request context.
type Authorizer struct{}

func (Authorizer) CanApply(ctx context.Context, actor string, kind models.Kind, _ models.Scope, revoke bool) error {
	p := PrincipalFrom(ctx)
	if p == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if p.Name != actor {
		return dErrors.New(dErrors.CodeForbidden, "actor does not match the authenticated moderator")
	}
	need := RightFor(kind)
	if revoke {
		need = RightPardon
	}
	if !p.Has(need) {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("missing right %q", need))
	}
	return nil
}
