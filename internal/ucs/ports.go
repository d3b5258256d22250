package ucs

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/eventbus"
)

// boxRepository is the persistence port for FileUploadBox, satisfied by
// *dao.DAO[FileUploadBox].
type boxRepository interface {
	Get(ctx context.Context, id string) (*FileUploadBox, error)
	Upsert(ctx context.Context, id string, doc *FileUploadBox) error
	Delete(ctx context.Context, id string) error
}

// fileUploadRepository is the persistence port for FileUpload, satisfied
// by *dao.DAO[FileUpload].
type fileUploadRepository interface {
	Get(ctx context.Context, id string) (*FileUpload, error)
	Upsert(ctx context.Context, id string, doc *FileUpload) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, filter bson.M) ([]*FileUpload, error)
}

// s3UploadDetailsRepository is the persistence port for S3UploadDetails,
// satisfied by *dao.DAO[S3UploadDetails].
type s3UploadDetailsRepository interface {
	Get(ctx context.Context, id string) (*S3UploadDetails, error)
	Upsert(ctx context.Context, id string, doc *S3UploadDetails) error
	Delete(ctx context.Context, id string) error
}

// eventPublisher is the outbound port UCS uses to emit box-creation
// events. Satisfied by *eventbus.OutboxPublisher.
type eventPublisher = eventbus.Publisher
