package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/platform/bus"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultSweepInterval     = 5 * time.Second
)

// Service connects a Tracker to the presence topic and emits this node's own
// join, leave and heartbeat events.
type Service struct {
	tracker  *Tracker
	bus      bus.Bus
	codec    *codec.Codec
	serverID string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	info              func() *models.ServerInfo

	seq atomic.Uint64

	mu  sync.Mutex
	sub bus.Subscription
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

func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithServerInfo supplies the descriptive payload attached to heartbeats.
func WithServerInfo(info func() *models.ServerInfo) Option {
	return func(s *Service) {
		s.info = info
	}
}

func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the presence service for the game server serverID. The
// sequence counter starts from the wall clock so a restarted node keeps
// issuing sequences above the ones it used before.
func NewService(tracker *Tracker, b bus.Bus, cdc *codec.Codec, serverID string, opts ...Option) (*Service, error) {
	if tracker == nil {
		return nil, errors.New("presence tracker is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if serverID == "" {
		return nil, errors.New("server id is required")
	}
	if cdc == nil {
		cdc = codec.New(codec.FormatJSON)
	}
	s := &Service{
		tracker:           tracker,
		bus:               b,
		codec:             cdc,
		serverID:          serverID,
		logger:            slog.Default(),
		now:               time.Now,
		heartbeatInterval: DefaultHeartbeatInterval,
		sweepInterval:     DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seq.Store(uint64(s.now().UnixNano()))
	return s, nil
}

func (s *Service) Tracker() *Tracker { return s.tracker }

func (s *Service) ServerID() string { return s.serverID }

// Start subscribes to the presence topic.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, models.TopicPresence, bus.HandlerFunc(s.handle))
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", models.TopicPresence, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *Service) handle(ctx context.Context, msg *bus.Message) error {
	ev, err := s.codec.DecodePresence(msg.Value)
	if err != nil {
		s.metrics.ObserveSyncEvent(msg.Topic, metrics.OutcomeMalformed)
		s.logger.WarnContext(ctx, "dropping malformed presence event", "error", err)
		return nil
	}
	outcome := metrics.OutcomeStale
	if s.tracker.Apply(ev) {
		outcome = metrics.OutcomeApplied
	}
	s.metrics.ObserveSyncEvent(msg.Topic, outcome)
	return nil
}

// Run sends heartbeats and sweeps silent servers until ctx is canceled. It
// announces the server immediately so peers see it without waiting a full
// interval.
func (s *Service) Run(ctx context.Context) error {
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	s.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			s.beat(ctx)
		case <-sweep.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Service) beat(ctx context.Context) {
	if err := s.Heartbeat(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "presence heartbeat failed", "server", s.serverID, "error", err)
	}
}

// Sweep expires silent servers and refreshes presence gauges.
func (s *Service) Sweep(ctx context.Context) {
	if expired := s.tracker.Sweep(s.now()); len(expired) > 0 {
		s.logger.InfoContext(ctx, "expired silent servers", "servers", expired)
	}
	s.metrics.SetPresence(s.tracker.Counts())
}

// PlayerJoined records and broadcasts a join on this node's server.
func (s *Service) PlayerJoined(ctx context.Context, subject models.SubjectID) error {
	return s.emit(ctx, models.PresenceJoin, subject)
}

// PlayerLeft records and broadcasts a leave on this node's server.
func (s *Service) PlayerLeft(ctx context.Context, subject models.SubjectID) error {
	return s.emit(ctx, models.PresenceLeave, subject)
}

// Heartbeat broadcasts server liveness, with server info when configured.
func (s *Service) Heartbeat(ctx context.Context) error {
	return s.emit(ctx, models.PresenceHeartbeat, "")
}

func (s *Service) emit(ctx context.Context, typ models.PresenceType, subject models.SubjectID) error {
	if typ != models.PresenceHeartbeat {
		if err := subject.Validate(); err != nil {
			return err
		}
	}
	ev := models.PresenceEvent{
		Type:      typ,
		Subject:   subject,
		Server:    s.serverID,
		Timestamp: s.now(),
		Sequence:  s.seq.Add(1),
	}
	if typ == models.PresenceHeartbeat && s.info != nil {
		ev.Info = s.info()
	}
	s.tracker.Apply(ev)

	payload, err := s.codec.EncodePresence(ev)
	if err != nil {
		return fmt.Errorf("encode presence event: %w", err)
	}
	if err := s.bus.Publish(ctx, models.TopicPresence, string(subject), payload); err != nil {
		return fmt.Errorf("publish presence event: %w", err)
	}
	return nil
}

// WhereIs delegates to the tracker.
func (s *Service) WhereIs(subject models.SubjectID) []string {
	return s.tracker.WhereIs(subject)
}

func (s *Service) Online(serverID string) []models.SubjectID {
	return s.tracker.Online(serverID)
}

func (s *Service) Servers() []ServerStatus {
	return s.tracker.Servers()
}

// Stop unsubscribes from the presence topic.
func (s *Service) Stop() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}
