package dao

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// IdempotenceRecord is the persisted key every service checks before acting
// on a consumed event, per spec's "check-then-insert and skip on duplicate"
// delivery guarantee.
type IdempotenceRecord struct {
	ID            string `bson:"_id"`
	CorrelationID string `bson:"correlation_id"`
	ResourceID    string `bson:"resource_id"`
	EventSchema   string `bson:"event_schema"`
}

// IdempotenceStore wraps the per-service idempotence collection.
type IdempotenceStore struct {
	collection *mongo.Collection
}

// NewIdempotenceStore wraps collection as an IdempotenceStore.
func NewIdempotenceStore(collection *mongo.Collection) *IdempotenceStore {
	return &IdempotenceStore{collection: collection}
}

func idempotenceKey(correlationID, resourceID, eventSchema string) string {
	return correlationID + ":" + resourceID + ":" + eventSchema
}

// CheckAndInsert atomically checks whether (correlationID, resourceID,
// eventSchema) has already been recorded and, if not, inserts it. Returns
// true when this is the first time the triple has been seen — the caller
// must process the event only in that case, and skip otherwise.
func (s *IdempotenceStore) CheckAndInsert(ctx context.Context, correlationID, resourceID, eventSchema string) (firstTime bool, err error) {
	id := idempotenceKey(correlationID, resourceID, eventSchema)
	record := IdempotenceRecord{
		ID:            id,
		CorrelationID: correlationID,
		ResourceID:    resourceID,
		EventSchema:   eventSchema,
	}

	_, err = s.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("idempotence check-and-insert: %w", err)
	}

	return true, nil
}

// PersistedEvent is one row of a service's outbox collection: an append-only
// log of outgoing domain events compacted on (topic, message key).
type PersistedEvent struct {
	ID        string            `bson:"_id"` // compaction key: "topic:message_key"
	Topic     string            `bson:"topic"`
	Key       string            `bson:"key"`
	Type      string            `bson:"type"`
	Payload   bson.Raw          `bson:"payload"`
	Headers   map[string]string `bson:"headers,omitempty"`
	CreatedTS int64             `bson:"created_ts"`
	Published bool              `bson:"published"`
}

// DocumentID implements Identifiable.
func (e *PersistedEvent) DocumentID() string { return e.ID }

// OutboxCompactionKey returns the `topic:message-key` compaction key an
// outbox row is stored and deduplicated under.
func OutboxCompactionKey(topic, messageKey string) string {
	return topic + ":" + messageKey
}

// PendingPublications returns every unpublished outbox row, in no
// particular order (no sort is applied), for the background
// publish_pending loop.
func PendingPublications(ctx context.Context, dao *DAO[PersistedEvent]) ([]*PersistedEvent, error) {
	return dao.Find(ctx, bson.M{"published": false})
}

// MarkPublished flags an outbox row as published after a successful send.
func MarkPublished(ctx context.Context, dao *DAO[PersistedEvent], id string) error {
	return dao.UpdateFields(ctx, id, bson.M{"published": true})
}
