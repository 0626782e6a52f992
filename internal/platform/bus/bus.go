// Package bus defines the publish/subscribe port shared by the memory, Kafka
// and Redis transports.
//
// Delivery is at-least-once and unordered across topics. Within one
// subscription, messages are handed to the handler one at a time.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("bus closed")

// Message is one delivered payload.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes messages from one topic. A returned error is logged by
// the transport and the message is dropped; transports never redeliver on
// handler failure.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Subscription is an active registration. Unsubscribe stops delivery and
// waits for an in-flight handler call to return.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the transport port.
type Bus interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
	Close() error
}

// Router dispatches messages to topic-specific handlers. Transports that
// consume several topics through one connection use it to fan out.
type Router struct {
	handlers map[string]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a specific topic, replacing any previous one.
func (r *Router) Register(topic string, handler Handler) {
	r.handlers[topic] = handler
}

// Remove drops the handler for topic.
func (r *Router) Remove(topic string) {
	delete(r.handlers, topic)
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Handle routes the message to the appropriate topic handler.
func (r *Router) Handle(ctx context.Context, msg *Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.WarnContext(ctx, "no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}
	return handler.Handle(ctx, msg)
}
