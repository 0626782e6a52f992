package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize bounds each memory subscription's backlog. Publish blocks
// while a subscriber's queue is full.
const DefaultQueueSize = 1024

// Memory is an in-process Bus. Several nodes sharing one Memory behave like a
// fleet on a real broker, which makes it the transport for tests and
// single-process deployments.
type Memory struct {
	mu        sync.RWMutex
	subs      map[string]map[uint64]*memorySub
	nextID    uint64
	closed    bool
	queueSize int
	logger    *slog.Logger
	now       func() time.Time
}

type MemoryOption func(*Memory)

func WithQueueSize(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		subs:      make(map[string]map[uint64]*memorySub),
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish copies the payload to every current subscriber of topic.
func (m *Memory) Publish(ctx context.Context, topic, key string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(m.subs[topic]))
	for _, sub := range m.subs[topic] {
		targets = append(targets, sub)
	}
	m.mu.RUnlock()

	ts := m.now()
	for _, sub := range targets {
		msg := &Message{
			Topic:     topic,
			Key:       []byte(key),
			Value:     append([]byte(nil), payload...),
			Timestamp: ts,
		}
		if err := sub.deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe starts a delivery goroutine for handler. The goroutine lives until
// Unsubscribe, Close, or cancellation of ctx.
func (m *Memory) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.nextID++
	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySub{
		id:     m.nextID,
		topic:  topic,
		bus:    m,
		queue:  make(chan *Message, m.queueSize),
		ctx:    subCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[uint64]*memorySub)
	}
	m.subs[topic][sub.id] = sub
	go sub.run(handler, m.logger)
	return sub, nil
}

// Close stops every subscription and rejects further use.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySub
	for _, byID := range m.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	m.subs = make(map[string]map[uint64]*memorySub)
	m.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byID, ok := m.subs[sub.topic]; ok {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(m.subs, sub.topic)
		}
	}
}

type memorySub struct {
	id     uint64
	topic  string
	bus    *Memory
	queue  chan *Message
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *memorySub) deliver(ctx context.Context, msg *Message) error {
	select {
	case s.queue <- msg:
		return nil
	case <-s.ctx.Done():
		// Subscriber is gone; the message is simply not delivered to it.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memorySub) run(handler Handler, logger *slog.Logger) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if err := handler.Handle(s.ctx, msg); err != nil {
				logger.WarnContext(s.ctx, "bus handler failed",
					"topic", msg.Topic,
					"key", string(msg.Key),
					"error", err,
				)
			}
		}
	}
}

func (s *memorySub) stop() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *memorySub) Unsubscribe() error {
	s.bus.remove(s)
	s.stop()
	return nil
}
