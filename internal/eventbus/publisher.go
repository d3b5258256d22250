package eventbus

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Publisher sends a single event to the broker, preserving per-key
// ordering (events sharing a Key land on the same partition).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// KafkaConfig configures a Kafka writer/reader pair.
type KafkaConfig struct {
	Brokers  []string
	DLQTopic string
}

// KafkaPublisher is a Publisher backed by a single kafka-go Writer shared
// across topics, hash-balanced on Event.Key so that same-key events always
// land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a KafkaPublisher against cfg.Brokers.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

// Publish writes event to its topic, keyed on event.Key.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg := kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.Key),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: HeaderType, Value: []byte(event.Type)},
			{Key: HeaderCorrelationID, Value: []byte(event.CorrelationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("eventbus: publishing %s to %s: %w", event.Type, event.Topic, err)
	}
	return nil
}

// Close flushes and releases the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)

// dlqPublisher is the narrow surface Consumer needs to shunt
// a message to the dead-letter topic; satisfied by KafkaPublisher.
type dlqPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// ToDLQ republishes event onto the configured DLQ topic unchanged except
// for its topic, preserving the original type/key/correlation id so an
// operator can inspect and replay it.
func ToDLQ(ctx context.Context, publisher dlqPublisher, dlqTopic string, event Event) error {
	dlqEvent := event
	dlqEvent.Topic = dlqTopic
	return publisher.Publish(ctx, dlqEvent)
}
