// Package service is the entry point hosts call into: restriction lookups,
// applies and revocations, presence questions and player reports.
//
// Reads are answered from the local cache and fall through to the store on a
// miss. When the store cannot answer, a stale cached copy is preferred over the
// configured unknown policy. Writes go through the synchronizer so every node
// converges on the same revision.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"nucleus/internal/moderation/cache"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/moderation/ports"
	"nucleus/internal/moderation/presence"
	dErrors "nucleus/pkg/domain-errors"
	"nucleus/pkg/platform/circuit"
	"nucleus/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Committer,Presence,Reporter

// Committer persists and broadcasts a locally originated restriction.
type Committer interface {
	Commit(ctx context.Context, r models.Restriction) error
}

// Presence answers where subjects are and records this node's joins and leaves.
type Presence interface {
	ServerID() string
	WhereIs(subject models.SubjectID) []string
	Online(serverID string) []models.SubjectID
	Servers() []presence.ServerStatus
	PlayerJoined(ctx context.Context, subject models.SubjectID) error
	PlayerLeft(ctx context.Context, subject models.SubjectID) error
}

// Reporter publishes player reports and returns them as sent.
type Reporter interface {
	Publish(ctx context.Context, report models.ReportEvent) (models.ReportEvent, error)
}

// UnknownPolicy decides lookups that neither the cache nor the store can answer.
type UnknownPolicy string

const (
	PolicyAllow UnknownPolicy = "allow"
	PolicyDeny  UnknownPolicy = "deny"
)

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAllow, PolicyDeny:
		return p, nil
	case "":
		return PolicyAllow, nil
	}
	return "", fmt.Errorf("unknown policy %q", s)
}

const DefaultStoreTimeout = 2 * time.Second

const maxReasonLength = 512

// Apply outcomes.
const (
	applyApplied   = "applied"
	applyConflict  = "conflict"
	applyForbidden = "forbidden"
	applyInvalid   = "invalid"
	applyFailed    = "failed"
)

// Service is safe for concurrent use.
type Service struct {
	store      ports.RestrictionStore
	cache      *cache.Cache
	committer  Committer
	authorizer ports.Authorizer
	presence   Presence
	reporter   Reporter
	subjects   ports.SubjectStore

	breaker      *circuit.Breaker
	group        singleflight.Group
	storeTimeout time.Duration
	policy       UnknownPolicy

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuthorizer replaces the default, which lets every actor apply anything.
func WithAuthorizer(a ports.Authorizer) Option {
	return func(s *Service) {
		if a != nil {
			s.authorizer = a
		}
	}
}

func WithPresence(p Presence) Option {
	return func(s *Service) {
		s.presence = p
	}
}

func WithReporter(r Reporter) Option {
	return func(s *Service) {
		s.reporter = r
	}
}

// WithSubjects records joins, leaves and kicks in a subject registry.
func WithSubjects(store ports.SubjectStore) Option {
	return func(s *Service) {
		s.subjects = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithStoreTimeout bounds each store read so lookups degrade instead of hanging.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithUnknownPolicy(p UnknownPolicy) Option {
	return func(s *Service) {
		if p != "" {
			s.policy = p
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store ports.RestrictionStore, c *cache.Cache, committer Committer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("restriction store is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if committer == nil {
		return nil, errors.New("committer is required")
	}
	s := &Service{
		store:        store,
		cache:        c,
		committer:    committer,
		authorizer:   AllowAll{},
		breaker:      circuit.New("restriction-store"),
		storeTimeout: DefaultStoreTimeout,
		policy:       PolicyAllow,
		logger:       slog.Default(),
		tracer:       otel.Tracer("nucleus/moderation/service"),
		now:          c.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AllowAll authorizes every actor. It suits in-process hosts that already
// checked permissions.
type AllowAll struct{}

func (AllowAll) CanApply(context.Context, string, models.Kind, models.Scope, bool) error {
	return nil
}

// =============================================================================
// Reads
// =============================================================================

// IsRestricted returns the most severe restriction that applies to subject in
// scope, or nil when the subject is free to proceed. A server-scoped check also
// matches fleet-wide restrictions.
func (s *Service) IsRestricted(ctx context.Context, subject models.SubjectID, scope models.Scope) (*models.Restriction, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.IsRestricted", trace.WithAttributes(
		attribute.String("subject", string(subject)),
		attribute.String("scope", string(scope)),
	))
	defer span.End()

	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid scope %q", scope))
	}

	restrictions, err := s.lookup(ctx, subject)
	if err != nil {
		span.RecordError(err)
		return s.unknown(ctx, span, subject, err)
	}
	match := mostSevereIn(restrictions, scope, s.now())
	if match != nil {
		span.SetAttributes(attribute.String("restriction.kind", string(match.Kind)))
	}
	return match, nil
}

// Active returns every active restriction of subject across all scopes.
func (s *Service) Active(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	restrictions, err := s.lookup(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "moderation state is unavailable")
	}
	return models.FilterActive(restrictions, s.now()), nil
}

// CheckMany answers IsRestricted for several subjects, loading every cache
// miss from the store in one batch. Subjects without a restriction are absent
// from the result.
func (s *Service) CheckMany(ctx context.Context, subjects []models.SubjectID, scope models.Scope) (map[models.SubjectID]models.Restriction, error) {
	if !scope.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid scope %q", scope))
	}
	now := s.now()
	out := make(map[models.SubjectID]models.Restriction)
	var misses []models.SubjectID
	for _, subject := range subjects {
		if err := subject.Validate(); err != nil {
			return nil, err
		}
		if rs, ok := s.cache.Get(subject); ok {
			s.metrics.ObserveLookup(metrics.LookupHit)
			if r := mostSevereIn(rs, scope, now); r != nil {
				out[subject] = *r
			}
			continue
		}
		misses = append(misses, subject)
	}
	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := s.loadMany(ctx, misses)
	if err == nil {
		for _, subject := range misses {
			s.metrics.ObserveLookup(metrics.LookupMiss)
			if r := mostSevereIn(loaded[subject], scope, now); r != nil {
				out[subject] = *r
			}
		}
		return out, nil
	}

	for _, subject := range misses {
		rs, ok := s.cache.Stale(subject)
		if ok {
			s.metrics.ObserveLookup(metrics.LookupStale)
			if r := mostSevereIn(rs, scope, now); r != nil {
				out[subject] = *r
			}
			continue
		}
		s.metrics.ObserveLookup(metrics.LookupUnknown)
		if s.policy == PolicyDeny {
			return nil, unavailable(err)
		}
	}
	s.logger.WarnContext(ctx, "answered batch check without the store",
		"subjects", len(misses),
		"policy", string(s.policy),
		"error", err,
	)
	return out, nil
}

// History returns every recorded revision for subject, newest first.
func (s *Service) History(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	history, err := s.store.History(ctx, subject)
	if err != nil {
		s.metrics.IncrementStoreErrors("history")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "restriction history is unavailable")
	}
	return history, nil
}

func (s *Service) lookup(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error) {
	if rs, ok := s.cache.Get(subject); ok {
		s.metrics.ObserveLookup(metrics.LookupHit)
		return rs, nil
	}
	v, err, _ := s.group.Do(string(subject), func() (any, error) {
		return s.load(ctx, subject)
	})
	if err == nil {
		s.metrics.ObserveLookup(metrics.LookupMiss)
		return v.([]models.Restriction), nil
	}
	if rs, ok := s.cache.Stale(subject); ok {
		s.metrics.ObserveLookup(metrics.LookupStale)
		s.logger.WarnContext(ctx, "serving stale restrictions",
			"subject", string(subject),
			"error", err,
		)
		return rs, nil
	}
	return nil, err
}

// load runs once per subject for all concurrent callers, so it must not
// inherit the cancellation of whichever caller happened to start it.
func (s *Service) load(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error) {
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("load restrictions for %s: store circuit open: %w", subject, sentinel.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	readStartedAt := s.cache.Now()
	rs, err := s.store.FindActive(ctx, subject, s.now())
	if err != nil {
		s.storeFailed(ctx, "find_active", err)
		return nil, fmt.Errorf("load restrictions for %s: %w", subject, err)
	}
	s.storeSucceeded(ctx)
	s.cache.Fill(subject, rs, readStartedAt)
	return rs, nil
}

func (s *Service) loadMany(ctx context.Context, subjects []models.SubjectID) (map[models.SubjectID][]models.Restriction, error) {
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("load restrictions: store circuit open: %w", sentinel.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	readStartedAt := s.cache.Now()
	rs, err := s.store.FindActiveFor(ctx, subjects, s.now())
	if err != nil {
		s.storeFailed(ctx, "find_active_for", err)
		return nil, fmt.Errorf("load restrictions for %d subjects: %w", len(subjects), err)
	}
	s.storeSucceeded(ctx)

	bySubject := make(map[models.SubjectID][]models.Restriction, len(subjects))
	for _, r := range rs {
		bySubject[r.Subject.ID] = append(bySubject[r.Subject.ID], r)
	}
	for _, subject := range subjects {
		s.cache.Fill(subject, bySubject[subject], readStartedAt)
	}
	return bySubject, nil
}

func (s *Service) unknown(ctx context.Context, span trace.Span, subject models.SubjectID, cause error) (*models.Restriction, error) {
	s.metrics.ObserveLookup(metrics.LookupUnknown)
	if s.policy == PolicyDeny {
		err := unavailable(cause)
		span.SetStatus(codes.Error, "moderation state unavailable")
		return nil, err
	}
	s.logger.WarnContext(ctx, "moderation state unknown, allowing subject",
		"subject", string(subject),
		"error", cause,
	)
	return nil, nil
}

func (s *Service) storeFailed(ctx context.Context, op string, err error) {
	s.metrics.IncrementStoreErrors(op)
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.metrics.SetBreakerOpen(true)
		s.logger.WarnContext(ctx, "store circuit opened",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
}

func (s *Service) storeSucceeded(ctx context.Context) {
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetBreakerOpen(false)
		s.logger.InfoContext(ctx, "store circuit closed", "breaker", s.breaker.Name())
	}
}

// =============================================================================
// Writes
// =============================================================================

// Apply authorizes actor, assigns the next revision for r's key and commits
// it. A concurrent write to the same key is retried once with a fresh
// revision before a conflict is returned.
func (s *Service) Apply(ctx context.Context, actor string, r models.Restriction) (*models.Restriction, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.Apply", trace.WithAttributes(
		attribute.String("subject", string(r.Subject.ID)),
		attribute.String("kind", string(r.Kind)),
		attribute.String("scope", string(r.Scope)),
		attribute.Bool("revoke", r.Revoked),
	))
	defer span.End()

	if err := s.authorize(ctx, actor, r.Kind, r.Scope, r.Revoked); err != nil {
		return nil, failSpan(span, err)
	}
	applied, err := s.commit(ctx, actor, r)
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(attribute.Int64("revision", int64(applied.Revision)))
	if applied.Kind == models.KindKick && !applied.Revoked {
		s.recordSubject(ctx, "record_kick", applied.Subject.ID, func(ctx context.Context) error {
			return s.subjects.RecordKick(ctx, applied.Subject.ID, applied.CreatedAt)
		})
	}
	return applied, nil
}

// Revoke pardons subject by applying a revoked revision over its active
// restriction of kind in scope.
func (s *Service) Revoke(ctx context.Context, actor string, subject models.SubjectID, kind models.Kind, scope models.Scope, reason string) (*models.Restriction, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.Revoke", trace.WithAttributes(
		attribute.String("subject", string(subject)),
		attribute.String("kind", string(kind)),
		attribute.String("scope", string(scope)),
	))
	defer span.End()

	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown restriction kind %q", kind))
	}
	if !scope.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid scope %q", scope))
	}
	if err := s.authorize(ctx, actor, kind, scope, true); err != nil {
		return nil, failSpan(span, err)
	}

	key := models.Key{Subject: subject, Kind: kind, Scope: scope}
	current, err := s.activeFromStore(ctx, key)
	if err != nil {
		return nil, failSpan(span, err)
	}
	if current == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s has no active %s in %s", subject, kind, scope))
	}

	revoked, err := s.commit(ctx, actor, models.Restriction{
		Subject: current.Subject,
		Kind:    kind,
		Scope:   scope,
		Reason:  reason,
		Revoked: true,
	})
	if err != nil {
		return nil, failSpan(span, err)
	}
	return revoked, nil
}

func (s *Service) authorize(ctx context.Context, actor string, kind models.Kind, scope models.Scope, revoke bool) error {
	err := s.authorizer.CanApply(ctx, actor, kind, scope, revoke)
	if err == nil {
		return nil
	}
	s.metrics.ObserveApply(string(kind), applyForbidden)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		err = dErrors.Wrap(err, dErrors.CodeForbidden, "actor may not apply this restriction")
	}
	return err
}

// commit validates r as written by actor and commits it under the next
// revision of its key. Callers authorize first.
func (s *Service) commit(ctx context.Context, actor string, r models.Restriction) (*models.Restriction, error) {
	r.Actor = actor
	r.CreatedAt = s.now()
	if r.Revoked {
		r.ExpiresAt = nil
	}
	if err := r.Validate(); err != nil {
		s.metrics.ObserveApply(string(r.Kind), applyInvalid)
		return nil, err
	}
	if len(r.Reason) > maxReasonLength {
		s.metrics.ObserveApply(string(r.Kind), applyInvalid)
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason exceeds %d characters", maxReasonLength))
	}
	if !r.Revoked && r.IsExpiredAt(r.CreatedAt) {
		s.metrics.ObserveApply(string(r.Kind), applyInvalid)
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}

	for attempt := 0; attempt < 2; attempt++ {
		rev, err := s.currentRevision(ctx, r.Key())
		if err != nil {
			s.metrics.ObserveApply(string(r.Kind), applyFailed)
			return nil, err
		}
		r.Revision = rev + 1

		err = s.committer.Commit(ctx, r)
		if err == nil {
			s.metrics.ObserveApply(string(r.Kind), applyApplied)
			s.logger.InfoContext(ctx, "restriction applied",
				"key", r.Key().String(),
				"revision", r.Revision,
				"actor", actor,
				"revoked", r.Revoked,
			)
			return &r, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			s.metrics.ObserveApply(string(r.Kind), applyFailed)
			return nil, commitError(err)
		}
		s.logger.InfoContext(ctx, "restriction revision taken, retrying",
			"key", r.Key().String(),
			"revision", r.Revision,
		)
	}

	s.metrics.ObserveApply(string(r.Kind), applyConflict)
	return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "restriction was changed concurrently, try again")
}

func (s *Service) currentRevision(ctx context.Context, key models.Key) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	rev, err := s.store.CurrentRevision(ctx, key)
	if err != nil {
		s.metrics.IncrementStoreErrors("current_revision")
		return 0, unavailable(fmt.Errorf("read revision of %s: %w", key, err))
	}
	return rev, nil
}

// activeFromStore reads the restriction occupying key directly from the store,
// since a revocation must not be decided on a possibly stale cache.
func (s *Service) activeFromStore(ctx context.Context, key models.Key) (*models.Restriction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	rs, err := s.store.FindActive(ctx, key.Subject, s.now())
	if err != nil {
		s.metrics.IncrementStoreErrors("find_active")
		return nil, unavailable(fmt.Errorf("load restrictions for %s: %w", key.Subject, err))
	}
	for i := range rs {
		if rs[i].Key() == key {
			return &rs[i], nil
		}
	}
	return nil, nil
}

// =============================================================================
// Presence and reports
// =============================================================================

// WhereIs lists the live servers subject is online on.
func (s *Service) WhereIs(_ context.Context, subject models.SubjectID) []string {
	if s.presence == nil {
		return nil
	}
	return s.presence.WhereIs(subject)
}

// Servers lists live servers; empty when presence is not wired.
func (s *Service) Servers() []presence.ServerStatus {
	if s.presence == nil {
		return nil
	}
	return s.presence.Servers()
}

// RestrictedOnline returns the restricted subjects currently online on serverID.
func (s *Service) RestrictedOnline(ctx context.Context, serverID string) (map[models.SubjectID]models.Restriction, error) {
	if s.presence == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "presence tracking is not enabled")
	}
	online := s.presence.Online(serverID)
	if len(online) == 0 {
		return map[models.SubjectID]models.Restriction{}, nil
	}
	return s.CheckMany(ctx, online, models.ServerScope(serverID))
}

// PlayerJoined gates a join on this node's server. A subject under a ban or
// kick is refused: the restriction is returned and nothing is recorded.
// Otherwise presence and the subject registry record the join and any lesser
// restriction, such as a mute, is returned for the host to enforce.
func (s *Service) PlayerJoined(ctx context.Context, subject models.Subject) (*models.Restriction, error) {
	if s.presence == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "presence tracking is not enabled")
	}
	if err := subject.ID.Validate(); err != nil {
		return nil, err
	}
	r, err := s.IsRestricted(ctx, subject.ID, models.ServerScope(s.presence.ServerID()))
	if err != nil {
		return nil, err
	}
	if r != nil && r.Kind.Severity() >= models.KindKick.Severity() {
		return r, nil
	}
	if err := s.presence.PlayerJoined(ctx, subject.ID); err != nil {
		return nil, presenceError(err)
	}
	s.recordSubject(ctx, "record_join", subject.ID, func(ctx context.Context) error {
		return s.subjects.RecordJoin(ctx, subject, s.now())
	})
	return r, nil
}

func (s *Service) PlayerLeft(ctx context.Context, subject models.SubjectID) error {
	if s.presence == nil {
		return dErrors.New(dErrors.CodeUnavailable, "presence tracking is not enabled")
	}
	if err := s.presence.PlayerLeft(ctx, subject); err != nil {
		return presenceError(err)
	}
	s.recordSubject(ctx, "record_leave", subject, func(ctx context.Context) error {
		return s.subjects.RecordLeave(ctx, subject, s.now())
	})
	return nil
}

// Profile returns what the registry has recorded about subject.
func (s *Service) Profile(ctx context.Context, subject models.SubjectID) (*models.Profile, error) {
	if s.subjects == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "subject registry is not enabled")
	}
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	p, err := s.subjects.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("subject %s has never been seen", subject))
		}
		s.metrics.IncrementStoreErrors("subject_get")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "subject registry unavailable")
	}
	return p, nil
}

// SubjectsByAddress lists subjects that joined from address, most recently
// seen first. Shared addresses are how alternate accounts of a banned player
// are found.
func (s *Service) SubjectsByAddress(ctx context.Context, address string) ([]models.Profile, error) {
	if s.subjects == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "subject registry is not enabled")
	}
	if strings.TrimSpace(address) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "address is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	profiles, err := s.subjects.FindByAddress(ctx, address)
	if err != nil {
		s.metrics.IncrementStoreErrors("subject_find_by_address")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "subject registry unavailable")
	}
	return profiles, nil
}

// recordSubject runs a registry write. The registry is informational, so a
// failure is logged and never fails the caller.
func (s *Service) recordSubject(ctx context.Context, op string, subject models.SubjectID, write func(context.Context) error) {
	if s.subjects == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := write(ctx); err != nil {
		s.metrics.IncrementStoreErrors(op)
		s.logger.WarnContext(ctx, "failed to update subject registry",
			"op", op,
			"subject", string(subject),
			"error", err,
		)
	}
}

// Report validates and publishes a player report.
func (s *Service) Report(ctx context.Context, report models.ReportEvent) (models.ReportEvent, error) {
	if s.reporter == nil {
		return models.ReportEvent{}, dErrors.New(dErrors.CodeUnavailable, "reports are not enabled")
	}
	if err := report.Reported.ID.Validate(); err != nil {
		return models.ReportEvent{}, err
	}
	if strings.TrimSpace(report.Reporter) == "" {
		return models.ReportEvent{}, dErrors.New(dErrors.CodeValidation, "reporter is required")
	}
	if strings.TrimSpace(report.Reason) == "" {
		return models.ReportEvent{}, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(report.Reason) > maxReasonLength {
		return models.ReportEvent{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason exceeds %d characters", maxReasonLength))
	}
	sent, err := s.reporter.Publish(ctx, report)
	if err != nil {
		return models.ReportEvent{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "report could not be delivered")
	}
	s.metrics.IncrementReports()
	return sent, nil
}

// =============================================================================
// Helpers
// =============================================================================

func mostSevereIn(restrictions []models.Restriction, scope models.Scope, now time.Time) *models.Restriction {
	matching := make([]models.Restriction, 0, len(restrictions))
	for _, r := range restrictions {
		if r.IsActiveAt(now) && r.Scope.Covers(scope) {
			matching = append(matching, r)
		}
	}
	return models.MostSevere(matching)
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func unavailable(cause error) error {
	if !errors.Is(cause, sentinel.ErrUnavailable) {
		cause = fmt.Errorf("%w: %w", sentinel.ErrUnavailable, cause)
	}
	return dErrors.Wrap(cause, dErrors.CodeUnavailable, "moderation state is unavailable")
}

func commitError(err error) error {
	switch {
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, sentinel.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "restriction could not be committed")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "restriction could not be committed")
	}
}

func presenceError(err error) error {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "presence update could not be delivered")
}
