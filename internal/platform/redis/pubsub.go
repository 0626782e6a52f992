package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"nucleus/internal/platform/bus"
)

// Bus implements bus.Bus over Redis Pub/Sub. Pub/Sub is fire-and-forget:
// nodes that are disconnected miss events and rely on the store seed when
// they reconnect. Record keys are not transmitted.
type Bus struct {
	client redis.UniversalClient
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBus(client redis.UniversalClient, opts ...Option) (*Bus, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	b := &Bus{
		client: client,
		logger: slog.Default(),
		subs:   make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bus) Publish(ctx context.Context, topic, _ string, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return bus.ErrClosed
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe blocks until Redis confirms the subscription, so no message
// published after Subscribe returns is missed.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler bus.Handler) (bus.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bus.ErrClosed
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		bus:    b,
		topic:  topic,
		pubsub: ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.run(subCtx, handler, b.logger)
	return sub, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*subscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

type subscription struct {
	bus    *Bus
	topic  string
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) run(ctx context.Context, handler bus.Handler, logger *slog.Logger) {
	defer close(s.done)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg := &bus.Message{
				Topic:     m.Channel,
				Value:     []byte(m.Payload),
				Timestamp: time.Now(),
			}
			if err := handler.Handle(ctx, msg); err != nil {
				logger.WarnContext(ctx, "bus handler failed",
					"topic", m.Channel,
					"error", err,
				)
			}
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
		<-s.done
	})
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
	return nil
}
