// Package synchronizer keeps a node's cache and the shared store in step with
// the punishment stream on the bus.
//
// A Synchronizer subscribes before it seeds, so nothing published while the
// seed runs is lost: handlers block until the seed completes and then apply
// their events on top of it. Every write is revision gated, which makes
// redelivery and reordering harmless.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"nucleus/internal/moderation/cache"
	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/moderation/ports"
	"nucleus/internal/platform/bus"
	"nucleus/pkg/platform/sentinel"
)

// State is the lifecycle phase of a Synchronizer.
type State int32

const (
	StateStarting State = iota
	StateCatchingUp
	StateLive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateCatchingUp:
		return "catching_up"
	case StateLive:
		return "live"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const (
	DefaultDedupeWindow   = 10 * time.Minute
	DefaultDedupeCapacity = 100_000
	DefaultRetryAttempts  = 4
	DefaultRetryInitial   = 100 * time.Millisecond
	DefaultRetryMax       = 2 * time.Second
)

// Synchronizer is the only writer to the store and the only path that merges
// bus events into the cache.
type Synchronizer struct {
	nodeID  string
	store   ports.RestrictionStore
	cache   *cache.Cache
	bus     bus.Bus
	codec   *codec.Codec
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	dedupeWindow   time.Duration
	dedupeCapacity int
	retryAttempts  uint64
	retryInitial   time.Duration
	retryMax       time.Duration

	started  atomic.Bool
	state    atomic.Int32
	live     chan struct{}
	stopping chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
	sub      bus.Subscription

	// seen holds recently handled event IDs for redelivery detection.
	seen *expirable.LRU[string, struct{}]
}

type Option func(*Synchronizer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithDedupeWindow sets how long event IDs are remembered for redelivery
// detection.
func WithDedupeWindow(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.dedupeWindow = d
		}
	}
}

// WithDedupeCapacity caps how many event IDs are remembered. The oldest are
// forgotten first when a burst exceeds it.
func WithDedupeCapacity(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.dedupeCapacity = n
		}
	}
}

// WithRetry bounds store persistence retries for remote events and for the
// startup seed.
func WithRetry(attempts uint64, initial, maxInterval time.Duration) Option {
	return func(s *Synchronizer) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if initial > 0 {
			s.retryInitial = initial
		}
		if maxInterval > 0 {
			s.retryMax = maxInterval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

func New(nodeID string, store ports.RestrictionStore, c *cache.Cache, b bus.Bus, cdc *codec.Codec, opts ...Option) (*Synchronizer, error) {
	if nodeID == "" {
		return nil, errors.New("node id is required")
	}
	if store == nil {
		return nil, errors.New("restriction store is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if cdc == nil {
		cdc = codec.New(codec.FormatJSON)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		nodeID:         nodeID,
		store:          store,
		cache:          c,
		bus:            b,
		codec:          cdc,
		logger:         slog.Default(),
		now:            time.Now,
		dedupeWindow:   DefaultDedupeWindow,
		dedupeCapacity: DefaultDedupeCapacity,
		retryAttempts:  DefaultRetryAttempts,
		retryInitial:   DefaultRetryInitial,
		retryMax:       DefaultRetryMax,
		live:           make(chan struct{}),
		stopping:       make(chan struct{}),
		runCtx:         runCtx,
		runCancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seen = expirable.NewLRU[string, struct{}](s.dedupeCapacity, nil, s.dedupeWindow)
	return s, nil
}

// NodeID returns the origin identifier stamped on locally committed events.
func (s *Synchronizer) NodeID() string { return s.nodeID }

func (s *Synchronizer) State() State {
	return State(s.state.Load())
}

func (s *Synchronizer) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetSyncState(int(st))
}

// Start subscribes to the punishment topic, seeds the cache from the store and
// switches to live. It may be called once.
func (s *Synchronizer) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("start synchronizer in state %s: %w", s.State(), sentinel.ErrInvalidState)
	}
	s.setState(StateStarting)

	sub, err := s.bus.Subscribe(s.runCtx, models.TopicPunishment, bus.HandlerFunc(s.handle))
	if err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("subscribe to %s: %w", models.TopicPunishment, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.setState(StateCatchingUp)

	s.cache.Purge()
	if err := s.seed(ctx); err != nil {
		// Misses still fall through to the store, so a failed seed only
		// costs outage resilience until entries are refilled.
		s.logger.WarnContext(ctx, "cache seed failed, continuing with an empty cache",
			"node", s.nodeID,
			"error", err,
		)
	}

	s.setState(StateLive)
	close(s.live)
	s.logger.InfoContext(ctx, "synchronizer live", "node", s.nodeID, "cached_subjects", s.cache.Len())
	return nil
}

func (s *Synchronizer) seed(ctx context.Context) error {
	readStarted := s.cache.Now()
	var active []models.Restriction
	err := s.retry(ctx, func() error {
		var err error
		active, err = s.store.ListActive(ctx, s.now())
		return err
	})
	if err != nil {
		s.metrics.IncrementStoreErrors("list_active")
		return err
	}

	bySubject := make(map[models.SubjectID][]models.Restriction)
	for _, r := range active {
		bySubject[r.Subject.ID] = append(bySubject[r.Subject.ID], r)
	}
	for subject, rs := range bySubject {
		s.cache.Fill(subject, rs, readStarted)
	}
	return nil
}

// WaitLive blocks until the seed completes, the synchronizer stops or ctx ends.
func (s *Synchronizer) WaitLive(ctx context.Context) error {
	select {
	case <-s.stopping:
		return sentinel.ErrClosed
	default:
	}
	select {
	case <-s.live:
		return nil
	case <-s.stopping:
		return sentinel.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commit persists a locally originated restriction and broadcasts it. The
// restriction must carry its final revision. Nothing is published unless the
// store accepted the write; a lost revision gate returns sentinel.ErrConflict.
func (s *Synchronizer) Commit(ctx context.Context, r models.Restriction) error {
	if err := s.WaitLive(ctx); err != nil {
		return fmt.Errorf("commit restriction: %w", err)
	}

	applied, err := s.store.Upsert(ctx, r)
	if err != nil {
		s.metrics.IncrementStoreErrors("upsert")
		return fmt.Errorf("persist restriction %s: %w", r.Key(), err)
	}
	if !applied {
		return fmt.Errorf("persist restriction %s revision %d: %w", r.Key(), r.Revision, sentinel.ErrConflict)
	}
	if err := s.store.AppendHistory(ctx, r); err != nil {
		s.metrics.IncrementStoreErrors("append_history")
		s.logger.WarnContext(ctx, "failed to append restriction history",
			"key", r.Key().String(),
			"revision", r.Revision,
			"error", err,
		)
	}
	s.cache.Put(r)

	event := models.PunishmentEvent{
		EventID:     uuid.NewString(),
		Origin:      s.nodeID,
		Restriction: r,
	}
	s.remember(event.EventID)

	payload, err := s.codec.EncodePunishment(event)
	if err != nil {
		return fmt.Errorf("encode punishment event: %w", err)
	}
	err = s.retry(ctx, func() error {
		return s.bus.Publish(ctx, models.TopicPunishment, string(r.Subject.ID), payload)
	})
	if err != nil {
		// The store holds the decision; peers converge on cache refill.
		s.logger.WarnContext(ctx, "failed to publish committed restriction",
			"event_id", event.EventID,
			"key", r.Key().String(),
			"revision", r.Revision,
			"error", err,
		)
	}
	return nil
}

func (s *Synchronizer) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.inflight.Add(1)
	return true
}

// handle processes one inbound punishment event. Failures are logged and never
// returned to the transport: each event stands alone.
func (s *Synchronizer) handle(ctx context.Context, msg *bus.Message) error {
	if !s.enter() {
		return nil
	}
	defer s.inflight.Done()

	select {
	case <-s.live:
	case <-s.stopping:
		return nil
	case <-ctx.Done():
		return nil
	}

	event, err := s.codec.DecodePunishment(msg.Value)
	if err != nil {
		s.metrics.ObserveSyncEvent(msg.Topic, metrics.OutcomeMalformed)
		s.logger.WarnContext(ctx, "dropping malformed punishment event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}
	if s.seenRecently(event.EventID) {
		s.metrics.ObserveSyncEvent(msg.Topic, metrics.OutcomeDuplicate)
		return nil
	}

	r := event.Restriction
	if event.Origin != s.nodeID {
		if stored, superseded := s.persistRemote(ctx, event); superseded {
			s.dropSuperseded(r.Key(), stored)
			s.metrics.ObserveSyncEvent(msg.Topic, metrics.OutcomeStale)
			return nil
		}
	}

	outcome := metrics.OutcomeStale
	if s.cache.Put(r) {
		outcome = metrics.OutcomeApplied
	}
	s.metrics.ObserveSyncEvent(msg.Topic, outcome)
	return nil
}

// persistRemote writes a peer's event through the revision gate. Peers race
// each other here; the gate lets exactly one of them land each revision.
// superseded reports that the store already holds a newer revision of the
// key; such an event must not reach the cache.
func (s *Synchronizer) persistRemote(ctx context.Context, event models.PunishmentEvent) (stored uint64, superseded bool) {
	r := event.Restriction
	var applied bool
	err := s.retry(ctx, func() error {
		var err error
		applied, err = s.store.Upsert(ctx, r)
		return err
	})
	if err != nil {
		s.metrics.IncrementStoreErrors("upsert")
		s.metrics.IncrementPersistFailures()
		s.logger.WarnContext(ctx, "restriction not durably persisted after retries",
			"event_id", event.EventID,
			"origin", event.Origin,
			"key", r.Key().String(),
			"revision", r.Revision,
			"error", err,
		)
		return 0, false
	}
	if applied {
		if err := s.store.AppendHistory(ctx, r); err != nil {
			s.metrics.IncrementStoreErrors("append_history")
			s.logger.WarnContext(ctx, "failed to append restriction history",
				"key", r.Key().String(),
				"revision", r.Revision,
				"error", err,
			)
		}
		return r.Revision, false
	}

	stored, err = s.store.CurrentRevision(ctx, r.Key())
	if err != nil {
		s.metrics.IncrementStoreErrors("current_revision")
		s.logger.WarnContext(ctx, "could not read stored revision after a lost revision gate",
			"event_id", event.EventID,
			"key", r.Key().String(),
			"revision", r.Revision,
			"error", err,
		)
		return math.MaxUint64, true
	}
	s.logger.DebugContext(ctx, "remote restriction lost the store revision gate",
		"event_id", event.EventID,
		"origin", event.Origin,
		"key", r.Key().String(),
		"revision", r.Revision,
		"stored_revision", stored,
	)
	return stored, stored > r.Revision
}

// dropSuperseded invalidates the subject when its cached slot for key is older
// than the stored revision, so the next read refills from the store.
func (s *Synchronizer) dropSuperseded(key models.Key, stored uint64) {
	if cached, ok := s.cache.Revision(key); ok && cached >= stored {
		return
	}
	s.cache.Invalidate(key.Subject)
}

// retry runs op with bounded exponential backoff. Only errors wrapping
// sentinel.ErrUnavailable are retried.
func (s *Synchronizer) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInitial
	policy.MaxInterval = s.retryMax
	policy.MaxElapsedTime = 0

	var b backoff.BackOff = policy
	if s.retryAttempts > 1 {
		b = backoff.WithMaxRetries(b, s.retryAttempts-1)
	} else {
		b = &backoff.StopBackOff{}
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !sentinel.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func (s *Synchronizer) remember(eventID string) {
	s.seen.Add(eventID, struct{}{})
}

// seenRecently reports whether eventID was handled within the dedupe window,
// recording it when not.
func (s *Synchronizer) seenRecently(eventID string) bool {
	if s.seen.Contains(eventID) {
		return true
	}
	s.seen.Add(eventID, struct{}{})
	return false
}

// Stop rejects new messages, waits for in-flight handlers and unsubscribes.
// It is safe to call more than once.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopping)
	sub := s.sub
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("drain synchronizer: %w", ctx.Err())
	}

	s.runCancel()
	if sub != nil {
		if uerr := sub.Unsubscribe(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("unsubscribe: %w", uerr))
		}
	}
	s.setState(StateStopped)
	s.logger.InfoContext(ctx, "synchronizer stopped", "node", s.nodeID)
	return err
}
