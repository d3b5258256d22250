package eventbus

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/logger"
)

// OutboxPublisher is the Publisher every core service uses: publishing an
// event first upserts it into the persisted-events collection under its
// compaction key, then attempts an immediate broker send. A broker outage
// never loses the event — it sits unpublished until the next
// PublishPending sweep.
type OutboxPublisher struct {
	events *dao.DAO[dao.PersistedEvent]
	inner  Publisher
}

// NewOutboxPublisher wraps inner with a persisted outbox backed by events.
func NewOutboxPublisher(events *dao.DAO[dao.PersistedEvent], inner Publisher) *OutboxPublisher {
	return &OutboxPublisher{events: events, inner: inner}
}

// Publish upserts event under its `topic:key` compaction key and attempts
// an immediate send; a send failure is not returned as an error to the
// caller, since the event is durably enqueued and PublishPending will
// retry it — the caller's own unit of work has already committed.
func (o *OutboxPublisher) Publish(ctx context.Context, event Event) error {
	key := OutboxCompactionKey(event.Topic, event.Key)

	record := &dao.PersistedEvent{
		ID:        key,
		Topic:     event.Topic,
		Key:       event.Key,
		Type:      event.Type,
		Payload:   bson.Raw(event.Payload),
		CreatedTS: event.CreatedAt.UnixMilli(),
		Published: false,
	}
	if event.CorrelationID != "" {
		record.Headers = map[string]string{HeaderCorrelationID: event.CorrelationID}
	}

	if err := o.events.Upsert(ctx, key, record); err != nil {
		return fmt.Errorf("eventbus: enqueueing %s: %w", key, err)
	}

	if err := o.inner.Publish(ctx, event); err != nil {
		logger.WarnCtx(ctx, "outbox publish deferred, broker send failed",
			logger.KeyError, err.Error(), "topic", event.Topic, "key", event.Key)
		return nil
	}

	if err := dao.MarkPublished(ctx, o.events, key); err != nil {
		return fmt.Errorf("eventbus: marking %s published: %w", key, err)
	}
	return nil
}

// Close releases the underlying broker connection.
func (o *OutboxPublisher) Close() error {
	return o.inner.Close()
}

var _ Publisher = (*OutboxPublisher)(nil)

// OutboxCompactionKey mirrors dao.OutboxCompactionKey for callers that only
// import eventbus.
func OutboxCompactionKey(topic, messageKey string) string {
	return dao.OutboxCompactionKey(topic, messageKey)
}

// PublishPending re-sends every unpublished outbox row and flips its flag
// on success. Intended to run on a fixed interval as a background task in
// every service's wiring container. oldestPendingAge is the age of the
// oldest row seen at the start of the sweep (zero if none were pending),
// fed to the outbox-lag gauge regardless of how the sweep itself fares.
func PublishPending(ctx context.Context, events *dao.DAO[dao.PersistedEvent], inner Publisher) (published int, oldestPendingAge time.Duration, err error) {
	rows, err := dao.PendingPublications(ctx, events)
	if err != nil {
		return 0, 0, fmt.Errorf("eventbus: loading pending rows: %w", err)
	}

	if len(rows) > 0 {
		oldest := rows[0]
		for _, row := range rows[1:] {
			if row.CreatedTS < oldest.CreatedTS {
				oldest = row
			}
		}
		oldestPendingAge = time.Since(time.UnixMilli(oldest.CreatedTS))
	}

	for _, row := range rows {
		event := eventFromRecord(row)
		if err := inner.Publish(ctx, event); err != nil {
			logger.ErrorCtx(ctx, "publish_pending send failed", logger.KeyError, err.Error(),
				"topic", row.Topic, "key", row.Key)
			continue
		}
		if err := dao.MarkPublished(ctx, events, row.ID); err != nil {
			return published, oldestPendingAge, fmt.Errorf("eventbus: marking %s published: %w", row.ID, err)
		}
		published++
	}

	return published, oldestPendingAge, nil
}

// Republish re-sends every outbox row, published or not — the operational
// recovery tool for a consumer-side outage that missed events entirely.
func Republish(ctx context.Context, events *dao.DAO[dao.PersistedEvent], inner Publisher) (republished int, err error) {
	rows, err := events.Find(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("eventbus: loading outbox rows: %w", err)
	}

	for _, row := range rows {
		if err := inner.Publish(ctx, eventFromRecord(row)); err != nil {
			return republished, fmt.Errorf("eventbus: republishing %s: %w", row.ID, err)
		}
		republished++
	}

	return republished, nil
}

func eventFromRecord(row *dao.PersistedEvent) Event {
	event := Event{
		Topic:     row.Topic,
		Key:       row.Key,
		Type:      row.Type,
		Payload:   []byte(row.Payload),
		CreatedAt: time.UnixMilli(row.CreatedTS),
	}
	if row.Headers != nil {
		event.CorrelationID = row.Headers[HeaderCorrelationID]
	}
	return event
}
