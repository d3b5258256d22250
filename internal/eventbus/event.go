// Package eventbus implements the Kafka-backed wire event contract every
// service exchanges: per-key-ordered publish, at-least-once consumption
// guarded by an idempotence check, a persisted outbox for outgoing events,
// and a DLQ for messages a handler cannot process.
package eventbus

import "time"

// Event is one outgoing or incoming domain event. Payload carries the
// already-JSON-encoded schema body (the event schemas themselves — e.g.
// FileInternallyRegistered, FileRegisteredForDownload — live in each
// service's core package, not here).
type Event struct {
	Topic         string
	Key           string // partitioning key: file_id or accession
	Type          string
	Payload       []byte
	CorrelationID string
	CreatedAt     time.Time
}

// Header keys carried on every produced message.
const (
	HeaderType          = "type"
	HeaderCorrelationID = "correlation_id"
)
