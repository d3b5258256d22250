package ifrs

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/eventbus"
)

// fileMetadataRepository is the persistence port for FileMetadata, keyed
// by file id but also looked up by accession, satisfied by
// *dao.DAO[FileMetadata].
type fileMetadataRepository interface {
	Get(ctx context.Context, id string) (*FileMetadata, error)
	Upsert(ctx context.Context, id string, doc *FileMetadata) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, filter bson.M) ([]*FileMetadata, error)
}

// pendingUploadRepository is the persistence port for PendingFileUpload,
// satisfied by *dao.DAO[PendingFileUpload].
type pendingUploadRepository interface {
	Get(ctx context.Context, id string) (*PendingFileUpload, error)
	Upsert(ctx context.Context, id string, doc *PendingFileUpload) error
	Delete(ctx context.Context, id string) error
}

// accessionRepository is the persistence port for FileIDToAccession,
// satisfied by *dao.DAO[FileIDToAccession].
type accessionRepository interface {
	Get(ctx context.Context, id string) (*FileIDToAccession, error)
	Upsert(ctx context.Context, id string, doc *FileIDToAccession) error
	Delete(ctx context.Context, id string) error
}

// objectStore is the subset of objectstorage.Storage the registry
// exercises: copying archived content between buckets and checking size
// and presence without pulling the rest of the surface into this package.
type objectStore interface {
	CopyObject(ctx context.Context, srcAlias, srcKey, dstAlias, dstKey string) error
	GetObjectSize(ctx context.Context, alias, objectKey string) (int64, error)
	DoesObjectExist(ctx context.Context, alias, objectKey string) (bool, error)
	DeleteObject(ctx context.Context, alias, objectKey string) error
}

// aliasResolver resolves a data hub's storage alias to the distinct
// storage alias its permanent bucket is configured under, mirroring
// ObjectStorages.for_alias in the original: each hub's inbox, permanent
// and outbox buckets live at different endpoints/credentials but share
// one logical storage alias namespace per hub.
type aliasResolver interface {
	PermanentAlias(hubAlias string) (permanentAlias string, ok bool)
}

// eventPublisher is the outbound port used to emit archival, staging and
// deletion events. Satisfied by *eventbus.OutboxPublisher.
type eventPublisher = eventbus.Publisher
