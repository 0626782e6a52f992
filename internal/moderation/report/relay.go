// Package report relays player reports from game servers to moderators over
// the report topic.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/platform/bus"
)

const DefaultBacklog = 100

// Handler receives every decoded report, including this node's own.
type Handler func(ctx context.Context, report models.ReportEvent) error

// Relay publishes reports and keeps a bounded backlog of the ones it received.
type Relay struct {
	bus      bus.Bus
	codec    *codec.Codec
	serverID string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	handler  Handler

	mu      sync.Mutex
	sub     bus.Subscription
	backlog []models.ReportEvent
	limit   int
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithHandler is called for each received report after it enters the backlog.
func WithHandler(h Handler) Option {
	return func(r *Relay) {
		r.handler = h
	}
}

// WithBacklog caps how many received reports Recent can return.
func WithBacklog(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.limit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func New(b bus.Bus, cdc *codec.Codec, serverID string, opts ...Option) (*Relay, error) {
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if cdc == nil {
		cdc = codec.New(codec.FormatJSON)
	}
	r := &Relay{
		bus:      b,
		codec:    cdc,
		serverID: serverID,
		logger:   slog.Default(),
		now:      time.Now,
		limit:    DefaultBacklog,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Publish stamps the report with an event ID, this node's server and the
// current time where missing, then broadcasts it.
func (r *Relay) Publish(ctx context.Context, report models.ReportEvent) (models.ReportEvent, error) {
	if report.EventID == "" {
		report.EventID = uuid.NewString()
	}
	if report.Server == "" {
		report.Server = r.serverID
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = r.now()
	}
	payload, err := r.codec.EncodeReport(report)
	if err != nil {
		return models.ReportEvent{}, fmt.Errorf("encode report: %w", err)
	}
	if err := r.bus.Publish(ctx, models.TopicReport, string(report.Reported.ID), payload); err != nil {
		return models.ReportEvent{}, fmt.Errorf("publish report %s: %w", report.EventID, err)
	}
	r.logger.InfoContext(ctx, "report published",
		"event_id", report.EventID,
		"reported", string(report.Reported.ID),
		"server", report.Server,
	)
	return report, nil
}

// Start subscribes to the report topic.
func (r *Relay) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, models.TopicReport, bus.HandlerFunc(r.handle))
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", models.TopicReport, err)
	}
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	return nil
}

func (r *Relay) handle(ctx context.Context, msg *bus.Message) error {
	report, err := r.codec.DecodeReport(msg.Value)
	if err != nil {
		r.metrics.ObserveSyncEvent(msg.Topic, metrics.OutcomeMalformed)
		r.logger.WarnContext(ctx, "dropping malformed report", "error", err)
		return nil
	}
	r.metrics.ObserveSyncEvent(msg.Topic, metrics.OutcomeApplied)

	r.mu.Lock()
	r.backlog = append(r.backlog, report)
	if over := len(r.backlog) - r.limit; over > 0 {
		r.backlog = append(r.backlog[:0:0], r.backlog[over:]...)
	}
	r.mu.Unlock()

	if r.handler != nil {
		if err := r.handler(ctx, report); err != nil {
			r.logger.WarnContext(ctx, "report handler failed",
				"event_id", report.EventID,
				"error", err,
			)
		}
	}
	return nil
}

// Recent returns up to n received reports, newest first.
func (r *Relay) Recent(n int) []models.ReportEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.backlog) {
		n = len(r.backlog)
	}
	out := make([]models.ReportEvent, 0, n)
	for i := len(r.backlog) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.backlog[i])
	}
	return out
}

// Stop unsubscribes from the report topic.
func (r *Relay) Stop() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}
