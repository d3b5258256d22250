package fis

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/eventbus"
)

// fileIDRepository is the persistence port backing has_already_been_processed,
// satisfied by *dao.DAO[FileIDRecord].
type fileIDRepository interface {
	Get(ctx context.Context, id string) (*FileIDRecord, error)
	Upsert(ctx context.Context, id string, doc *FileIDRecord) error
}

// interrogationRepository is the persistence port for FileUnderInterrogation,
// satisfied by *dao.DAO[FileUnderInterrogation].
type interrogationRepository interface {
	Get(ctx context.Context, id string) (*FileUnderInterrogation, error)
	Upsert(ctx context.Context, id string, doc *FileUnderInterrogation) error
	Find(ctx context.Context, filter bson.M) ([]*FileUnderInterrogation, error)
}

// eventPublisher is the outbound port for FileUploadValidationSuccess and
// the enhanced interrogation events. Satisfied by *eventbus.OutboxPublisher.
type eventPublisher = eventbus.Publisher

// keyStore is the outbound port for depositing a decrypted file secret and
// getting back an opaque secret id, satisfied by *keystoreclient.Client
// restricted to its deposit half.
type keyStore interface {
	PostSecret(ctx context.Context, secret []byte) (secretID string, err error)
}

// envelopeDecryptor opens a payload anonymously sealed against this
// service's Crypt4GH public key, satisfied by *crypt4gh.KeyPair.
type envelopeDecryptor interface {
	Open(sealed []byte) ([]byte, error)
}
