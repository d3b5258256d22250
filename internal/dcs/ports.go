package dcs

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/eventbus"
)

// drsObjectRepository is the outbound port over the drs_objects
// collection, restricted to the methods the registry actually calls.
type drsObjectRepository interface {
	Get(ctx context.Context, fileID string) (*DrsObject, error)
	Upsert(ctx context.Context, fileID string, doc *DrsObject) error
	Delete(ctx context.Context, fileID string) error
	Find(ctx context.Context, filter bson.M) ([]*DrsObject, error)
}

// objectStore is the subset of objectstorage.Storage the registry uses:
// presigned downloads, object existence/listing and deletion. It never
// copies or initiates uploads — those belong to IFRS and UCS.
type objectStore interface {
	DoesObjectExist(ctx context.Context, alias, objectKey string) (bool, error)
	DeleteObject(ctx context.Context, alias, objectKey string) error
	ListAllObjectIDs(ctx context.Context, alias string) ([]string, error)
	PresignDownload(ctx context.Context, alias, objectKey string, ttl time.Duration) (url string, err error)
}

// keyStore is the outbound port for envelope retrieval and secret
// deletion, satisfied by *keystoreclient.Client restricted to its
// download-side half.
type keyStore interface {
	GetEnvelope(ctx context.Context, secretID string, recipientPublicKey []byte) ([]byte, error)
	DeleteSecret(ctx context.Context, secretID string) error
}

// aliasResolver resolves a hub's inbox-side storage alias (the one
// carried on wire events) to the outbox alias DCS itself reads from and
// deletes from. Mirrors internal/ifrs's aliasResolver: objectstorage.Storage
// models one bucket per alias, so inbox/permanent/outbox for a given hub
// are three distinct aliases rather than three roles of one.
type aliasResolver interface {
	OutboxAlias(hubAlias string) (outboxAlias string, ok bool)
}

type eventPublisher = eventbus.Publisher
