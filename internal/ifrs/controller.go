package ifrs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
	"github.com/marmos91/dittofs/internal/logger"
)

const (
	fileInternallyRegisteredTopic = "file-internally-registered"
	fileDeletedTopic              = "file-deleted"
)

// RegistryController implements archival, staging, deletion and the
// accession/file_id join described in handle_file_upload/store_accessions.
type RegistryController struct {
	metadata   fileMetadataRepository
	pending    pendingUploadRepository
	accessions accessionRepository
	events     eventPublisher
	storage    objectStore
	aliases    aliasResolver
}

// NewRegistryController builds a RegistryController.
func NewRegistryController(
	metadata fileMetadataRepository,
	pending pendingUploadRepository,
	accessions accessionRepository,
	events eventPublisher,
	storage objectStore,
	aliases aliasResolver,
) *RegistryController {
	return &RegistryController{
		metadata:   metadata,
		pending:    pending,
		accessions: accessions,
		events:     events,
		storage:    storage,
		aliases:    aliases,
	}
}

// findByAccession looks up FileMetadata by its accession field rather than
// its file-id primary key.
func (c *RegistryController) findByAccession(ctx context.Context, accession string) (*FileMetadata, error) {
	rows, err := c.metadata.Find(ctx, bson.M{"accession": accession})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dao.ErrNotFound
	}
	return rows[0], nil
}

// RegisterFile copies a validated upload from the inbox bucket into
// permanent storage and records its authoritative metadata. If the exact
// same metadata has already been registered for this file id, it is a
// no-op; conflicting metadata under the same id is logged and dropped
// rather than surfaced as an error, since the event bus redelivers and a
// crash mid-handler should not poison the topic.
func (c *RegistryController) RegisterFile(ctx context.Context, file FileMetadata) error {
	permanentAlias, ok := c.aliases.PermanentAlias(file.StorageAlias)
	if !ok {
		return apierror.UnknownStorageAlias(file.StorageAlias)
	}

	existing, err := c.metadata.Get(ctx, file.FileID)
	switch {
	case err == nil:
		if existing.equalContent(&file) {
			logger.InfoCtx(ctx, "file already registered", logger.KeyFileID, file.FileID)
			return nil
		}
		logger.WarnCtx(ctx, "dropping re-registration with conflicting metadata",
			logger.KeyFileID, file.FileID)
		return nil
	case errors.Is(err, dao.ErrNotFound):
		// not yet registered, proceed
	default:
		return err
	}

	exists, err := c.storage.DoesObjectExist(ctx, file.StorageAlias, file.FileID)
	if err != nil {
		return err
	}
	if !exists {
		return apierror.FileNotInInterrogation(file.FileID)
	}
	actualSize, err := c.storage.GetObjectSize(ctx, file.StorageAlias, file.FileID)
	if err != nil {
		return err
	}
	if actualSize != file.EncryptedSize {
		return apierror.SizeMismatch(file.FileID, file.EncryptedSize, actualSize)
	}

	if err := c.storage.CopyObject(ctx, file.StorageAlias, file.FileID, permanentAlias, file.FileID); err != nil {
		return apierror.CopyOperationError(file.FileID, permanentAlias, err)
	}

	file.BucketID = permanentAlias
	file.ArchiveDate = time.Now()
	if err := c.metadata.Upsert(ctx, file.FileID, &file); err != nil {
		return err
	}

	return c.publishRegistered(ctx, &file)
}

func (c *RegistryController) publishRegistered(ctx context.Context, file *FileMetadata) error {
	payload, err := json.Marshal(fileInternallyRegisteredEvent{
		Accession: file.Accession, FileID: file.FileID, ObjectID: file.ObjectID,
		StorageAlias: file.StorageAlias, BucketID: file.BucketID, SecretID: file.SecretID,
		DecryptedSHA256: file.DecryptedSHA256, DecryptedSize: file.DecryptedSize,
		EncryptedSize: file.EncryptedSize, PartSize: file.PartSize,
		PartsMD5: file.PartsMD5, PartsSHA256: file.PartsSHA256,
	})
	if err != nil {
		return err
	}
	return c.events.Publish(ctx, eventbus.Event{
		Topic: fileInternallyRegisteredTopic, Key: file.Accession,
		Type: "file_internally_registered", Payload: payload, CreatedAt: time.Now(),
	})
}

// StageRegisteredFile copies an archived file from permanent storage into
// a download-specific outbox bucket, verifying the caller's checksum
// matches the one recorded at archival time first.
func (c *RegistryController) StageRegisteredFile(ctx context.Context, accession, decryptedSHA256, downloadObjectID, downloadBucketID string) error {
	file, err := c.findByAccession(ctx, accession)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return apierror.FileNotInRegistry(accession)
		}
		return err
	}

	if decryptedSHA256 != file.DecryptedSHA256 {
		return apierror.ChecksumMismatch(accession, file.DecryptedSHA256, decryptedSHA256)
	}

	exists, err := c.storage.DoesObjectExist(ctx, file.BucketID, file.FileID)
	if err != nil {
		return err
	}
	if !exists {
		return apierror.FileInRegistryButNotInStorage(file.FileID, file.BucketID, file.ObjectID)
	}

	if err := c.storage.CopyObject(ctx, file.BucketID, file.FileID, downloadBucketID, downloadObjectID); err != nil {
		return apierror.CopyOperationError(file.FileID, downloadBucketID, err)
	}

	logger.InfoCtx(ctx, "staged file to outbox",
		logger.KeyFileID, file.FileID, "accession", accession, "outbox_object_id", downloadObjectID)
	return nil
}

// DeleteFile removes a file's content from permanent storage and its
// registry record, then publishes FileDeleted. A missing object or a
// missing record are both treated as "already deleted" and are not
// errors.
func (c *RegistryController) DeleteFile(ctx context.Context, accession string) error {
	file, err := c.findByAccession(ctx, accession)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			logger.InfoCtx(ctx, "delete requested for unknown accession, nothing to do", "accession", accession)
			return nil
		}
		return err
	}

	if err := c.storage.DeleteObject(ctx, file.BucketID, file.FileID); err != nil {
		return err
	}
	if err := c.metadata.Delete(ctx, file.FileID); err != nil {
		return err
	}

	payload, err := json.Marshal(fileDeletedEvent{FileID: accession})
	if err != nil {
		return err
	}
	return c.events.Publish(ctx, eventbus.Event{
		Topic: fileDeletedTopic, Key: accession,
		Type: "file_deleted", Payload: payload, CreatedAt: time.Now(),
	})
}

// StoreAccessions applies an accession map: for each accession whose
// matching upload has already arrived, archival begins immediately;
// otherwise the accession is stored to await that upload.
func (c *RegistryController) StoreAccessions(ctx context.Context, accessionMap AccessionMap) error {
	for accession, fileID := range accessionMap {
		pending, err := c.pending.Get(ctx, fileID)
		if err != nil {
			if !errors.Is(err, dao.ErrNotFound) {
				return err
			}
			if err := c.accessions.Upsert(ctx, fileID, &FileIDToAccession{FileID: fileID, Accession: accession}); err != nil {
				return err
			}
			continue
		}
		if err := c.RegisterFile(ctx, *pending.toFileMetadata(accession)); err != nil {
			return err
		}
	}
	return nil
}

// HandleFileUpload stores a validated upload as pending, or begins
// archival immediately if an accession already arrived for it.
func (c *RegistryController) HandleFileUpload(ctx context.Context, pending PendingFileUpload) error {
	mapping, err := c.accessions.Get(ctx, pending.FileID)
	if err != nil {
		if !errors.Is(err, dao.ErrNotFound) {
			return err
		}
		return c.pending.Upsert(ctx, pending.FileID, &pending)
	}
	return c.RegisterFile(ctx, *pending.toFileMetadata(mapping.Accession))
}

// HandleFileUploadValidationSuccess adapts the FileUploadValidationSuccess
// wire event into a PendingFileUpload for HandleFileUpload.
func (c *RegistryController) HandleFileUploadValidationSuccess(ctx context.Context, payload []byte) error {
	var event fileUploadValidationSuccessEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apierror.WrongDecryptedFormat(err)
	}
	if len(event.EncryptedPartsMD5) != len(event.EncryptedPartsSHA256) {
		return apierror.WrongDecryptedFormat(errors.New("encrypted_parts_md5 and encrypted_parts_sha256 have mismatched lengths"))
	}
	return c.HandleFileUpload(ctx, PendingFileUpload{
		FileID: event.FileID, ObjectID: event.ObjectID, StorageAlias: event.StorageAlias,
		SecretID: event.SecretID, DecryptedSHA256: event.DecryptedSHA256,
		DecryptedSize: event.DecryptedSize, EncryptedSize: event.EncryptedSize,
		PartSize: event.PartSize, PartsMD5: event.EncryptedPartsMD5, PartsSHA256: event.EncryptedPartsSHA256,
	})
}

// HandleNonStagedFileRequested adapts the NonStagedFileRequested wire
// event into a StageRegisteredFile call.
func (c *RegistryController) HandleNonStagedFileRequested(ctx context.Context, payload []byte) error {
	var event nonStagedFileRequestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apierror.WrongDecryptedFormat(err)
	}
	return c.StageRegisteredFile(ctx, event.Accession, event.DecryptedSHA256, event.DownloadObjectID, event.DownloadBucketID)
}
