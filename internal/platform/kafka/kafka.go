// Package kafka implements bus.Bus on Kafka-compatible brokers with franz-go.
//
// Each node consumes with its own consumer group so every node sees every
// event. Records for one topic are handled sequentially; topics are
// handled independently. Offsets are committed only for records whose handler
// has returned, so a crash redelivers anything still queued.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"nucleus/internal/platform/bus"
	"nucleus/internal/platform/config"
)

const (
	topicQueueSize = 256
	commitTimeout  = 5 * time.Second
)

// Bus is a franz-go backed bus.Bus.
type Bus struct {
	client *kgo.Client
	admin  *kadm.Client
	cfg    config.Kafka
	logger *slog.Logger

	mu      sync.RWMutex
	router  *bus.Router
	workers map[string]*topicWorker
	closed  bool

	pollOnce   sync.Once
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

type Option func(*options)

type options struct {
	logger     *slog.Logger
	clientOpts []kgo.Opt
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClientOptions appends raw franz-go options; later options win.
func WithClientOptions(opts ...kgo.Opt) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// New connects to the brokers and, when configured, provisions topics.
func New(ctx context.Context, cfg config.Kafka, clientID string, topics []string, opts ...Option) (*Bus, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AutoCommitMarks(),
	}
	kopts = append(kopts, o.clientOpts...)

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}

	b := &Bus{
		client:   client,
		admin:    kadm.NewClient(client),
		cfg:      cfg,
		logger:   o.logger,
		router:   bus.NewRouter(o.logger, nil),
		workers:  make(map[string]*topicWorker),
		pollDone: make(chan struct{}),
	}
	if cfg.CreateTopics && len(topics) > 0 {
		if err := b.EnsureTopics(ctx, topics...); err != nil {
			client.Close()
			return nil, err
		}
	}
	return b, nil
}

// EnsureTopics creates missing topics with the configured partition count and
// replication factor. Existing topics are left untouched.
func (b *Bus) EnsureTopics(ctx context.Context, topics ...string) error {
	partitions := b.cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := b.cfg.Replication
	if replication <= 0 {
		replication = 1
	}
	resp, err := b.admin.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create kafka topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish produces one record and waits for broker acknowledgement.
func (b *Bus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return bus.ErrClosed
	}
	record := &kgo.Record{Topic: topic, Value: payload}
	if key != "" {
		record.Key = []byte(key)
	}
	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts consuming topic. A topic accepts one handler per Bus.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler bus.Handler) (bus.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bus.ErrClosed
	}
	if _, exists := b.workers[topic]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("topic %s already has a subscriber", topic)
	}
	w := newTopicWorker(ctx, topic, handler, b.logger, b.client.MarkCommitRecords)
	b.workers[topic] = w
	b.router.Register(topic, w)
	b.mu.Unlock()

	b.client.AddConsumeTopics(topic)
	b.pollOnce.Do(b.startPolling)
	return &subscription{bus: b, worker: w}, nil
}

func (b *Bus) startPolling() {
	ctx, cancel := context.WithCancel(context.Background())
	b.pollCancel = cancel
	go b.poll(ctx)
}

func (b *Bus) poll(ctx context.Context) {
	defer close(b.pollDone)
	for {
		fetches := b.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				continue
			}
			b.logger.WarnContext(ctx, "kafka fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			msg := &bus.Message{
				Topic:     r.Topic,
				Key:       r.Key,
				Value:     r.Value,
				Timestamp: r.Timestamp,
			}
			b.mu.RLock()
			err := b.router.Handle(withRecord(ctx, r), msg)
			b.mu.RUnlock()
			if err != nil && !errors.Is(err, context.Canceled) {
				b.logger.WarnContext(ctx, "kafka dispatch failed", "topic", r.Topic, "error", err)
			}
		})
	}
}

func (b *Bus) unsubscribe(w *topicWorker) {
	b.mu.Lock()
	if cur, ok := b.workers[w.topic]; ok && cur == w {
		delete(b.workers, w.topic)
		b.router.Remove(w.topic)
	}
	b.mu.Unlock()
	b.client.PurgeTopicsFromConsuming(w.topic)
	w.stop()
}

// Close stops polling, drains topic workers and closes the client.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	// Stop the poll loop before collecting workers: it holds the read lock
	// while handing records over.
	b.pollOnce.Do(func() {})
	if b.pollCancel != nil {
		b.pollCancel()
		<-b.pollDone
	}

	b.mu.Lock()
	workers := make([]*topicWorker, 0, len(b.workers))
	for _, w := range b.workers {
		workers = append(workers, w)
	}
	b.workers = make(map[string]*topicWorker)
	b.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := b.client.CommitMarkedOffsets(ctx); err != nil {
		b.logger.WarnContext(ctx, "kafka offset commit on close failed", "error", err)
	}
	b.client.Close()
	return nil
}

type subscription struct {
	bus    *Bus
	worker *topicWorker
	once   sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() { s.bus.unsubscribe(s.worker) })
	return nil
}

type recordKey struct{}

// withRecord attaches the fetched record so the worker can mark it once handled.
func withRecord(ctx context.Context, r *kgo.Record) context.Context {
	return context.WithValue(ctx, recordKey{}, r)
}

func recordFrom(ctx context.Context) *kgo.Record {
	r, _ := ctx.Value(recordKey{}).(*kgo.Record)
	return r
}

type delivery struct {
	msg    *bus.Message
	record *kgo.Record
}

// topicWorker hands a topic's records to its handler one at a time, so a slow
// handler on one topic never stalls another.
type topicWorker struct {
	topic   string
	handler bus.Handler
	logger  *slog.Logger
	mark    func(...*kgo.Record)
	queue   chan delivery
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// newTopicWorker starts a worker. mark, when set, receives each record after
// its handler returns.
func newTopicWorker(ctx context.Context, topic string, handler bus.Handler, logger *slog.Logger, mark func(...*kgo.Record)) *topicWorker {
	wctx, cancel := context.WithCancel(ctx)
	w := &topicWorker{
		topic:   topic,
		handler: handler,
		logger:  logger,
		mark:    mark,
		queue:   make(chan delivery, topicQueueSize),
		ctx:     wctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Handle enqueues msg for the worker goroutine. It blocks while the queue is
// full, which applies backpressure to the poll loop.
func (w *topicWorker) Handle(ctx context.Context, msg *bus.Message) error {
	select {
	case w.queue <- delivery{msg: msg, record: recordFrom(ctx)}:
		return nil
	case <-w.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *topicWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case d := <-w.queue:
			if err := w.handler.Handle(w.ctx, d.msg); err != nil {
				w.logger.WarnContext(w.ctx, "bus handler failed",
					"topic", d.msg.Topic,
					"key", string(d.msg.Key),
					"error", err,
				)
			}
			// A handler cut short by shutdown leaves its record for redelivery.
			if d.record != nil && w.mark != nil && w.ctx.Err() == nil {
				w.mark(d.record)
			}
		}
	}
}

func (w *topicWorker) stop() {
	w.cancel()
	<-w.done
}
