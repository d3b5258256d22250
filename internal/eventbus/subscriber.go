package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/logger"
)

// Handler processes one validated event. The event's Key (file_id or
// accession) serves as the resource id for idempotence bookkeeping; the
// returned error, if any, is treated as a processing failure and the
// message is shunted to the DLQ rather than retried forever.
type Handler func(ctx context.Context, event Event) error

// Route maps one (topic, type) pair to the handler that processes it. A
// single Consumer may carry routes for several types sharing one topic,
// matching translators that subscribe to more than one event type.
type Route struct {
	Topic   string
	Type    string
	Handler Handler
}

// ConsumerConfig configures one Kafka consumer group reader.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	DLQTopic string
}

// Consumer reads one topic as part of a consumer group, dispatches each
// message by its `type` header to the matching Route, and guards against
// re-processing a duplicate delivery via an idempotence store keyed on
// (correlation_id, resource_id, event_schema).
type Consumer struct {
	reader      *kafka.Reader
	routes      map[string]Handler // keyed by event type
	idempotence *dao.IdempotenceStore
	dlq         dlqPublisher
	dlqTopic    string
}

// NewConsumer builds a Consumer for cfg.Topic, dispatching to routes and
// checking idempotence against store before invoking a handler. dlq is
// used to shunt messages a route fails to process or that match no
// registered route.
func NewConsumer(cfg ConsumerConfig, routes []Route, store *dao.IdempotenceStore, dlq dlqPublisher) (*Consumer, error) {
	byType := make(map[string]Handler, len(routes))
	for _, route := range routes {
		if route.Topic != cfg.Topic {
			return nil, fmt.Errorf("eventbus: route for topic %q registered on consumer for %q", route.Topic, cfg.Topic)
		}
		byType[route.Type] = route.Handler
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})

	return &Consumer{
		reader:      reader,
		routes:      byType,
		idempotence: store,
		dlq:         dlq,
		dlqTopic:    cfg.DLQTopic,
	}, nil
}

// Run processes messages until ctx is cancelled or a fatal reader error
// occurs. Each message is fetched, dispatched, and explicitly committed
// only after successful processing (or after being shunted to the DLQ) so
// that a crash mid-handler redelivers rather than silently drops work.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("eventbus: fetching from %s: %w", c.reader.Config().Topic, err)
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("eventbus: committing offset on %s: %w", c.reader.Config().Topic, err)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	event := eventFromMessage(msg)

	handler, known := c.routes[event.Type]
	if !known {
		logger.WarnCtx(ctx, "no route for event type, shunting to dlq",
			"topic", event.Topic, "type", event.Type, "key", event.Key)
		c.shuntToDLQ(ctx, event)
		return
	}

	firstTime, err := c.idempotence.CheckAndInsert(ctx, event.CorrelationID, event.Key, event.Type)
	if err != nil {
		logger.ErrorCtx(ctx, "idempotence check failed", logger.KeyError, err.Error(),
			"topic", event.Topic, "key", event.Key)
		c.shuntToDLQ(ctx, event)
		return
	}
	if !firstTime {
		logger.DebugCtx(ctx, "duplicate delivery skipped",
			"topic", event.Topic, "key", event.Key, "correlation_id", event.CorrelationID)
		return
	}

	if err := handler(ctx, event); err != nil {
		logger.ErrorCtx(ctx, "event handler failed", logger.KeyError, err.Error(),
			"topic", event.Topic, "type", event.Type, "key", event.Key)
		c.shuntToDLQ(ctx, event)
	}
}

func (c *Consumer) shuntToDLQ(ctx context.Context, event Event) {
	if c.dlq == nil || c.dlqTopic == "" {
		return
	}
	if err := ToDLQ(ctx, c.dlq, c.dlqTopic, event); err != nil {
		logger.ErrorCtx(ctx, "failed to shunt message to dlq", logger.KeyError, err.Error(),
			"topic", event.Topic, "key", event.Key)
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func eventFromMessage(msg kafka.Message) Event {
	event := Event{
		Topic:     msg.Topic,
		Key:       string(msg.Key),
		Payload:   msg.Value,
		CreatedAt: msg.Time,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case HeaderType:
			event.Type = string(h.Value)
		case HeaderCorrelationID:
			event.CorrelationID = string(h.Value)
		}
	}
	return event
}
