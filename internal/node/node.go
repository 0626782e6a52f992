// Package node assembles one moderation node from configuration and runs it
// until its context is canceled.
package node

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"nucleus/internal/moderation/auth"
	"nucleus/internal/moderation/cache"
	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/handler"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/moderation/ports"
	"nucleus/internal/moderation/presence"
	"nucleus/internal/moderation/report"
	"nucleus/internal/moderation/service"
	restrictionstore "nucleus/internal/moderation/store/restriction"
	subjectstore "nucleus/internal/moderation/store/subject"
	"nucleus/internal/moderation/synchronizer"
	"nucleus/internal/platform/bus"
	"nucleus/internal/platform/config"
	"nucleus/internal/platform/httpserver"
	"nucleus/internal/platform/kafka"
	httpmetrics "nucleus/internal/platform/metrics"
	"nucleus/internal/platform/postgres"
	"nucleus/internal/platform/redis"
)

// Node owns every component of a running moderation node.
type Node struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	listener net.Listener

	bus      bus.Bus
	db       *sql.DB
	redis    *redis.Client
	store    ports.RestrictionStore
	subjects ports.SubjectStore
	cache    *cache.Cache
	sync     *synchronizer.Synchronizer
	presence *presence.Service
	relay    *report.Relay
	service  *service.Service
	handler  http.Handler

	closers []func() error
}

type Option func(*Node)

// WithListener serves HTTP on ln instead of listening on cfg.HTTP.Addr.
func WithListener(ln net.Listener) Option {
	return func(n *Node) {
		n.listener = ln
	}
}

// WithStore replaces the configured restriction store.
func WithStore(store ports.RestrictionStore) Option {
	return func(n *Node) {
		n.store = store
	}
}

// WithBus replaces the configured bus. The node still closes it on shutdown.
func WithBus(b bus.Bus) Option {
	return func(n *Node) {
		n.bus = b
	}
}

// New connects to the configured bus and store and assembles the node. Nothing
// is subscribed until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (n *Node, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	n = &Node{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(n)
	}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	n.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	modMetrics := metrics.New(n.registry)

	format, err := codec.ParseFormat(cfg.Bus.Codec)
	if err != nil {
		return nil, err
	}
	cdc := codec.New(format)

	if n.store == nil {
		if err := n.openStore(ctx); err != nil {
			return nil, err
		}
	}
	if n.subjects == nil {
		n.subjects = subjectstore.NewInMemory()
	}
	if n.bus == nil {
		if err := n.openBus(ctx); err != nil {
			return nil, err
		}
	} else {
		n.closers = append(n.closers, n.bus.Close)
	}

	n.cache = cache.New(
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithShards(cfg.Cache.Shards),
	)

	n.sync, err = synchronizer.New(cfg.Node.ID, n.store, n.cache, n.bus, cdc,
		synchronizer.WithLogger(logger),
		synchronizer.WithMetrics(modMetrics),
		synchronizer.WithDedupeWindow(cfg.Sync.DedupeWindow),
		synchronizer.WithDedupeCapacity(cfg.Sync.DedupeCapacity),
		synchronizer.WithRetry(cfg.Sync.RetryAttempts, cfg.Sync.RetryInitial, cfg.Sync.RetryMax),
	)
	if err != nil {
		return nil, fmt.Errorf("create synchronizer: %w", err)
	}

	tracker := presence.NewTracker(presence.WithTimeout(cfg.Presence.Timeout))
	n.presence, err = presence.NewService(tracker, n.bus, cdc, cfg.Node.ServerID,
		presence.WithLogger(logger),
		presence.WithMetrics(modMetrics),
		presence.WithHeartbeatInterval(cfg.Presence.HeartbeatInterval),
		presence.WithSweepInterval(cfg.Presence.SweepInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("create presence service: %w", err)
	}

	n.relay, err = report.New(n.bus, cdc, cfg.Node.ServerID,
		report.WithLogger(logger),
		report.WithMetrics(modMetrics),
		report.WithHandler(func(ctx context.Context, e models.ReportEvent) error {
			logger.InfoContext(ctx, "player report received",
				"report_id", e.EventID,
				"server", e.Server,
				"reported", e.Reported.ID.String(),
			)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create report relay: %w", err)
	}

	policy, err := service.ParseUnknownPolicy(cfg.Policy.Unknown)
	if err != nil {
		return nil, err
	}
	n.service, err = service.New(n.store, n.cache, n.sync,
		service.WithLogger(logger),
		service.WithMetrics(modMetrics),
		service.WithAuthorizer(auth.Authorizer{}),
		service.WithPresence(n.presence),
		service.WithReporter(n.relay),
		service.WithSubjects(n.subjects),
		service.WithStoreTimeout(cfg.Store.Timeout),
		service.WithUnknownPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("create moderation service: %w", err)
	}

	directory, err := auth.NewDirectory(cfg.Auth.Moderators)
	if err != nil {
		return nil, fmt.Errorf("load moderators: %w", err)
	}
	signingKey := cfg.Auth.JWTSigningKey
	if signingKey == "" {
		// No moderators are configured, so no token can be issued anyway.
		if signingKey, err = auth.GenerateKey(); err != nil {
			return nil, err
		}
	}
	tokens := auth.NewTokenService(signingKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	n.handler = handler.New(n.service, directory, tokens,
		handler.WithLogger(logger),
		handler.WithMetrics(httpmetrics.New(n.registry)),
		handler.WithGatherer(n.registry),
		handler.WithLockout(auth.NewLockout()),
		handler.WithReportFeed(n.relay),
		handler.WithReadiness(n.Ready),
	).Routes()

	logger.InfoContext(ctx, "node assembled",
		"node", cfg.Node.ID,
		"server", cfg.Node.ServerID,
		"bus", cfg.Bus.Driver,
		"store", cfg.Store.Driver,
		"moderators", directory.Len(),
	)
	return n, nil
}

func (n *Node) openStore(ctx context.Context) error {
	switch n.cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, n.cfg.Store)
		if err != nil {
			return err
		}
		n.db = db
		n.closers = append(n.closers, db.Close)
		if n.cfg.Store.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		n.store = restrictionstore.NewPostgres(db)
		n.subjects = subjectstore.NewPostgres(db)
	default:
		n.store = restrictionstore.NewInMemory()
		n.subjects = subjectstore.NewInMemory()
	}
	return nil
}

func (n *Node) openBus(ctx context.Context) error {
	switch n.cfg.Bus.Driver {
	case config.DriverKafka:
		topics := []string{models.TopicPunishment, models.TopicPresence, models.TopicReport}
		b, err := kafka.New(ctx, n.cfg.Kafka, n.cfg.Node.ID, topics, kafka.WithLogger(n.logger))
		if err != nil {
			return err
		}
		n.bus = b
	case config.DriverRedis:
		client, err := redis.New(ctx, n.cfg.Redis, "nucleus-"+n.cfg.Node.ID)
		if err != nil {
			return err
		}
		n.redis = client
		n.closers = append(n.closers, client.Close)
		b, err := redis.NewBus(client, redis.WithLogger(n.logger))
		if err != nil {
			return err
		}
		n.bus = b
	default:
		n.bus = bus.NewMemory(bus.WithLogger(n.logger))
	}
	n.closers = append(n.closers, n.bus.Close)
	return nil
}

// Service returns the moderation facade for plugin hosts embedding the node.
// Calls must carry a principal, see auth.WithPrincipal.
func (n *Node) Service() *service.Service { return n.service }

// Handler returns the HTTP API.
func (n *Node) Handler() http.Handler { return n.handler }

// Registry returns the node's metrics registry.
func (n *Node) Registry() *prometheus.Registry { return n.registry }

// Ready reports whether the node has finished seeding and its dependencies
// answer.
func (n *Node) Ready(ctx context.Context) error {
	if st := n.sync.State(); st != synchronizer.StateLive {
		return fmt.Errorf("synchronizer is %s", st)
	}
	if n.redis != nil {
		if err := n.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if n.db != nil {
		if err := n.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// Run starts the node and blocks until ctx is canceled or a component fails.
// Shutdown stops HTTP intake first, then drains bus handlers, then closes
// the bus and the store.
func (n *Node) Run(ctx context.Context) error {
	defer n.close()

	if err := n.sync.Start(ctx); err != nil {
		return fmt.Errorf("start synchronizer: %w", err)
	}
	if err := n.presence.Start(ctx); err != nil {
		return fmt.Errorf("start presence: %w", err)
	}
	if err := n.relay.Start(ctx); err != nil {
		return fmt.Errorf("start report relay: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.presence.Run(gctx)
	})
	g.Go(func() error {
		srv := httpserver.New(n.cfg.HTTP.Addr, n.handler)
		return httpserver.Run(gctx, srv, n.listener, n.cfg.Node.ShutdownTimeout, n.logger)
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.Node.ShutdownTimeout)
	defer cancel()
	n.logger.InfoContext(shutdownCtx, "node shutting down", "node", n.cfg.Node.ID)

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := n.relay.Stop(); err != nil && !errors.Is(err, bus.ErrClosed) {
		errs = append(errs, fmt.Errorf("stop report relay: %w", err))
	}
	if err := n.presence.Stop(); err != nil && !errors.Is(err, bus.ErrClosed) {
		errs = append(errs, fmt.Errorf("stop presence: %w", err))
	}
	if err := n.sync.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop synchronizer: %w", err))
	}
	return errors.Join(errs...)
}

// close releases connections in reverse order of acquisition.
func (n *Node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			n.logger.Warn("failed to release node resource", "error", err)
		}
	}
	n.closers = nil
}
