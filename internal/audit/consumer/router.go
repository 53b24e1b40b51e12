// Package consumer holds the Kafka message handlers of the alerter.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"audittrail/internal/platform/kafka/consumer"
)

// TopicHandler processes one record of a subscribed topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// HandlerFunc adapts a function to TopicHandler.
type HandlerFunc func(ctx context.Context, msg *consumer.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *consumer.Message) error { return f(ctx, msg) }

// Router picks the handler registered for a record's topic. Records on
// topics without a handler go to the fallback, or are logged and committed
// when there is none.
type Router struct {
	byTopic  map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{byTopic: map[string]TopicHandler{}, fallback: fallback, logger: logger}
}

// Register binds h to topic. Binding a topic twice is a wiring bug and panics.
func (r *Router) Register(topic string, h TopicHandler) {
	if _, taken := r.byTopic[topic]; taken {
		panic(fmt.Sprintf("consumer: topic %q registered twice", topic))
	}
	r.byTopic[topic] = h
}

// Topics returns the registered topics in sorted order, ready for subscription.
func (r *Router) Topics() []string {
	return slices.Sorted(maps.Keys(r.byTopic))
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if h, ok := r.byTopic[msg.Topic]; ok {
		return h.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "no handler for topic",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
