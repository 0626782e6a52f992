// Package ports defines the interfaces shared by the moderation components.
// Interfaces live here when more than one component consumes them.
package ports

import (
	"context"
	"time"

	"nucleus/internal/moderation/models"
)

// RestrictionStore is the durable source of truth for restrictions.
//
// Infrastructure failures are returned wrapping sentinel.ErrUnavailable so the
// synchronizer can retry them. Implementations must bound reads by the
// context deadline and never block indefinitely.
type RestrictionStore interface {
	// Upsert writes r under its key only when r.Revision is strictly greater than
	// the stored revision. applied is false when the write lost the revision gate.
	Upsert(ctx context.Context, r models.Restriction) (applied bool, err error)

	// FindActive returns a subject's restrictions that are neither revoked nor
	// expired at now.
	FindActive(ctx context.Context, subject models.SubjectID, now time.Time) ([]models.Restriction, error)

	// FindActiveFor is FindActive for several subjects in one round trip.
	FindActiveFor(ctx context.Context, subjects []models.SubjectID, now time.Time) ([]models.Restriction, error)

	// ListActive returns every active restriction, used to seed caches on start.
	ListActive(ctx context.Context, now time.Time) ([]models.Restriction, error)

	// CurrentRevision returns the stored revision for key, 0 when absent.
	CurrentRevision(ctx context.Context, key models.Key) (uint64, error)

	// AppendHistory records an accepted write in the append-only audit trail.
	AppendHistory(ctx context.Context, r models.Restriction) error

	// History returns every recorded revision for a subject, newest first.
	History(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error)
}

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Publisher emits payloads to a bus topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Authorizer decides whether an actor may apply a restriction.
type Authorizer interface {
	CanApply(ctx context.Context, actor string, kind models.Kind, scope models.Scope, revoke bool) error
}

// SubjectStore records what the fleet observes about subjects. Lookups of an
// unknown subject return sentinel.ErrNotFound; infrastructure failures wrap
// sentinel.ErrUnavailable.
type SubjectStore interface {
	// RecordJoin creates the profile on first sight and folds in the name and
	// address carried by subject.
	RecordJoin(ctx context.Context, subject models.Subject, at time.Time) error

	// RecordLeave closes the open session and accumulates play time.
	RecordLeave(ctx context.Context, subject models.SubjectID, at time.Time) error

	// RecordKick counts a kick against the subject.
	RecordKick(ctx context.Context, subject models.SubjectID, at time.Time) error

	Get(ctx context.Context, subject models.SubjectID) (*models.Profile, error)

	// FindByAddress lists profiles that ever joined from address.
	FindByAddress(ctx context.Context, address string) ([]models.Profile, error)
}
