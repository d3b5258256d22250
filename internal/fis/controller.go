package fis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
	"github.com/marmos91/dittofs/internal/logger"
)

// ValidationSuccessTopic is the topic both ingest shapes publish
// FileUploadValidationSuccess to once a file has cleared this service.
const ValidationSuccessTopic = "file-upload-validation-success"

// InterrogationTopic is the topic the enhanced interrogation path
// publishes InterrogationSuccess/InterrogationFailure to.
const InterrogationTopic = "interrogation-events"

// IngestController handles both the legacy (inline secret) and federated
// (split metadata/secret) ingest shapes. The two federated calls are
// correlated entirely by the submitting client: ingest_secret returns a
// secret id with no knowledge of file_id, and the client is expected to
// embed that id in the ingest_metadata payload it sends next.
type IngestController struct {
	fileIDs   fileIDRepository
	events    eventPublisher
	keyStore  keyStore
	decryptor envelopeDecryptor
}

// NewIngestController wires an IngestController from its ports.
func NewIngestController(fileIDs *dao.DAO[FileIDRecord], events eventbus.Publisher, ks keyStore, decryptor envelopeDecryptor) *IngestController {
	return &IngestController{
		fileIDs:   fileIDs,
		events:    events,
		keyStore:  ks,
		decryptor: decryptor,
	}
}

// HasAlreadyBeenProcessed reports whether fileID has already cleared
// ingest, per the idempotence contract: duplicate ingests are no-ops.
func (c *IngestController) HasAlreadyBeenProcessed(ctx context.Context, fileID string) (bool, error) {
	_, err := c.fileIDs.Get(ctx, fileID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, dao.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("fis: checking file id %s: %w", fileID, err)
}

// decryptSealed opens a sealed envelope and distinguishes a corrupt/
// wrongly-keyed payload (DecryptionError) from one that decodes but
// doesn't match the expected JSON schema (WrongDecryptedFormatError).
func (c *IngestController) decryptSealed(sealed []byte, out any) error {
	plaintext, err := c.decryptor.Open(sealed)
	if err != nil {
		return apierror.DecryptionError(err)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return apierror.WrongDecryptedFormat(err)
	}
	return nil
}

// IngestLegacy decrypts a legacy-shaped envelope (wrapped key inline),
// deposits the key, records the file id, and emits
// FileUploadValidationSuccess. A duplicate file_id is a silent no-op.
func (c *IngestController) IngestLegacy(ctx context.Context, sealed []byte) error {
	var metadata LegacyUploadMetadata
	if err := c.decryptSealed(sealed, &metadata); err != nil {
		return err
	}

	alreadyProcessed, err := c.HasAlreadyBeenProcessed(ctx, metadata.FileID)
	if err != nil {
		return err
	}
	if alreadyProcessed {
		return nil
	}

	secretID, err := c.keyStore.PostSecret(ctx, metadata.FileSecret)
	if err != nil {
		return apierror.VaultCommunicationError("deposit_secret", err)
	}

	return c.populate(ctx, metadata.FileID, fileUploadValidationSuccessEvent{
		FileID:               metadata.FileID,
		ObjectID:             metadata.ObjectID,
		SecretID:             secretID,
		PartSize:             metadata.PartSize,
		EncryptedSize:        metadata.EncryptedSize,
		DecryptedSize:        metadata.DecryptedSize,
		EncryptedPartsMD5:    metadata.EncryptedPartsMD5,
		EncryptedPartsSHA256: metadata.EncryptedPartsSHA256,
		DecryptedSHA256:      metadata.DecryptedSHA256,
		StorageAlias:         metadata.StorageAlias,
	})
}

// IngestFederatedMetadata decrypts the metadata half of a federated
// ingest, which already carries the secret id its companion
// IngestFederatedSecret call returned, and emits
// FileUploadValidationSuccess.
func (c *IngestController) IngestFederatedMetadata(ctx context.Context, sealed []byte) error {
	var metadata UploadMetadata
	if err := c.decryptSealed(sealed, &metadata); err != nil {
		return err
	}

	alreadyProcessed, err := c.HasAlreadyBeenProcessed(ctx, metadata.FileID)
	if err != nil {
		return err
	}
	if alreadyProcessed {
		return nil
	}

	return c.populate(ctx, metadata.FileID, fileUploadValidationSuccessEvent{
		FileID:               metadata.FileID,
		ObjectID:             metadata.ObjectID,
		SecretID:             metadata.SecretID,
		PartSize:             metadata.PartSize,
		EncryptedSize:        metadata.EncryptedSize,
		DecryptedSize:        metadata.DecryptedSize,
		EncryptedPartsMD5:    metadata.EncryptedPartsMD5,
		EncryptedPartsSHA256: metadata.EncryptedPartsSHA256,
		DecryptedSHA256:      metadata.DecryptedSHA256,
		StorageAlias:         metadata.StorageAlias,
	})
}

// IngestFederatedSecret decrypts and deposits the secret half of a
// federated ingest, returning the secret id the submitter's companion
// ingest_metadata call should reference. Unlike IngestLegacy and
// IngestFederatedMetadata, the decrypted payload here is the raw secret
// itself, not a JSON envelope.
func (c *IngestController) IngestFederatedSecret(ctx context.Context, sealed []byte) (string, error) {
	plaintext, err := c.decryptor.Open(sealed)
	if err != nil {
		return "", apierror.DecryptionError(err)
	}

	secretID, err := c.keyStore.PostSecret(ctx, plaintext)
	if err != nil {
		return "", apierror.VaultCommunicationError("deposit_secret", err)
	}

	return secretID, nil
}

func (c *IngestController) populate(ctx context.Context, fileID string, event fileUploadValidationSuccessEvent) error {
	if err := c.fileIDs.Upsert(ctx, fileID, &FileIDRecord{FileID: fileID}); err != nil {
		return fmt.Errorf("fis: recording file id %s: %w", fileID, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("fis: marshaling validation success payload: %w", err)
	}
	if err := c.events.Publish(ctx, eventbus.Event{
		Topic: ValidationSuccessTopic, Key: fileID, Type: "file_upload_validation_success",
		Payload: payload, CorrelationID: fileID, CreatedAt: time.Now(),
	}); err != nil {
		logger.ErrorCtx(ctx, "failed to publish file_upload_validation_success", logger.KeyError, err.Error(), logger.KeyFileID, fileID)
	}
	return nil
}

// InterrogationHandler owns FileUnderInterrogation records and interprets
// InterrogationReport submissions against the per-file state machine.
type InterrogationHandler struct {
	files    interrogationRepository
	events   eventPublisher
	keyStore keyStore
}

// NewInterrogationHandler wires an InterrogationHandler from its ports.
func NewInterrogationHandler(files *dao.DAO[FileUnderInterrogation], events eventbus.Publisher, ks keyStore) *InterrogationHandler {
	return &InterrogationHandler{files: files, events: events, keyStore: ks}
}

// CheckIfRemovable reports whether fileID can be removed from the
// interrogation bucket. A missing record is treated as removable (warn,
// don't block janitorial cleanup on a record we never saw).
func (h *InterrogationHandler) CheckIfRemovable(ctx context.Context, fileID string) (bool, error) {
	file, err := h.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			logger.WarnCtx(ctx, "no interrogation record found, treating as removable", logger.KeyFileID, fileID)
			return true, nil
		}
		return false, fmt.Errorf("fis: loading file %s: %w", fileID, err)
	}
	return file.CanRemove, nil
}

// DoesFileExist reports whether a FileUnderInterrogation with the given ID
// exists.
func (h *InterrogationHandler) DoesFileExist(ctx context.Context, fileID string) (bool, error) {
	_, err := h.files.Get(ctx, fileID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, dao.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("fis: loading file %s: %w", fileID, err)
}

// HandleInterrogationReport deposits the secret and emits
// InterrogationSuccess on a passing report, or emits InterrogationFailure
// on a failing one; either way the file transitions to a terminal state
// and state_updated advances.
func (h *InterrogationHandler) HandleInterrogationReport(ctx context.Context, report InterrogationReport) error {
	file, err := h.files.Get(ctx, report.FileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return apierror.FileNotInInterrogation(report.FileID)
		}
		return fmt.Errorf("fis: loading file %s: %w", report.FileID, err)
	}

	if report.Passed {
		secretID, err := h.keyStore.PostSecret(ctx, report.Secret)
		if err != nil {
			return apierror.VaultCommunicationError("deposit_secret", err)
		}

		file.State = StateInterrogated
		payload, err := json.Marshal(interrogationSuccessEvent{
			FileID:               report.FileID,
			SecretID:             secretID,
			StorageAlias:         report.StorageAlias,
			InterrogatedAt:       report.InterrogatedAt,
			EncryptedPartsMD5:    report.EncryptedPartsMD5,
			EncryptedPartsSHA256: report.EncryptedPartsSHA256,
		})
		if err != nil {
			return fmt.Errorf("fis: marshaling interrogation success payload: %w", err)
		}
		if err := h.events.Publish(ctx, eventbus.Event{
			Topic: InterrogationTopic, Key: report.FileID, Type: "interrogation_success",
			Payload: payload, CorrelationID: report.FileID, CreatedAt: time.Now(),
		}); err != nil {
			logger.ErrorCtx(ctx, "failed to publish interrogation_success", logger.KeyError, err.Error(), logger.KeyFileID, report.FileID)
		}
	} else {
		file.State = StateFailed
		file.CanRemove = true

		payload, err := json.Marshal(interrogationFailedEvent{
			FileID: report.FileID, StorageAlias: report.StorageAlias,
			InterrogatedAt: report.InterrogatedAt, Reason: report.Reason,
		})
		if err != nil {
			return fmt.Errorf("fis: marshaling interrogation failed payload: %w", err)
		}
		if err := h.events.Publish(ctx, eventbus.Event{
			Topic: InterrogationTopic, Key: report.FileID, Type: "interrogation_failed",
			Payload: payload, CorrelationID: report.FileID, CreatedAt: time.Now(),
		}); err != nil {
			logger.ErrorCtx(ctx, "failed to publish interrogation_failed", logger.KeyError, err.Error(), logger.KeyFileID, report.FileID)
		}
	}

	file.Interrogated = true
	file.StateUpdated = time.Now()
	if err := h.files.Upsert(ctx, file.ID, file); err != nil {
		return fmt.Errorf("fis: persisting file %s: %w", report.FileID, err)
	}
	return nil
}

// ProcessFileUpload ingests a newly-observed FileUpload state. Files in
// "init" are not tracked; "inbox" is inserted once; any later state is
// applied only if it is newer than what we have and lands in a terminal
// state this service cares about.
func (h *InterrogationHandler) ProcessFileUpload(ctx context.Context, file FileUnderInterrogation) error {
	if file.State == StateInit {
		return nil
	}
	if file.State == StateInbox {
		_, err := h.files.Get(ctx, file.ID)
		if err != nil {
			if !errors.Is(err, dao.ErrNotFound) {
				return fmt.Errorf("fis: checking file %s: %w", file.ID, err)
			}
			return h.files.Upsert(ctx, file.ID, &file)
		}
		return nil
	}

	local, err := h.files.Get(ctx, file.ID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fis: loading file %s: %w", file.ID, err)
	}

	if !local.StateUpdated.Before(file.StateUpdated) {
		logger.InfoCtx(ctx, "encountered old data for file, ignoring", logger.KeyFileID, file.ID)
		return nil
	}

	switch file.State {
	case StateCancelled, StateFailed, StateArchived:
		if file.State != local.State {
			local.State = file.State
			local.StateUpdated = file.StateUpdated
			local.CanRemove = true
			if err := h.files.Upsert(ctx, local.ID, local); err != nil {
				return fmt.Errorf("fis: updating file %s: %w", file.ID, err)
			}
		}
	}
	return nil
}

// GetFilesNotYetInterrogated returns every inbox file awaiting
// interrogation for dataHub.
func (h *InterrogationHandler) GetFilesNotYetInterrogated(ctx context.Context, dataHub string) ([]BaseFileInformation, error) {
	files, err := h.files.Find(ctx, bson.M{"data_hub": dataHub, "state": StateInbox, "interrogated": false})
	if err != nil {
		return nil, fmt.Errorf("fis: listing files for hub %s: %w", dataHub, err)
	}
	out := make([]BaseFileInformation, 0, len(files))
	for _, f := range files {
		out = append(out, BaseFileInformation{FileID: f.ID, DataHub: f.DataHub, StorageAlias: f.StorageAlias})
	}
	return out, nil
}

// AckFileCancellation marks fileID cancelled and removable.
func (h *InterrogationHandler) AckFileCancellation(ctx context.Context, fileID string) error {
	file, err := h.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return apierror.FileNotInInterrogation(fileID)
		}
		return fmt.Errorf("fis: loading file %s: %w", fileID, err)
	}

	file.State = StateCancelled
	file.StateUpdated = time.Now()
	file.CanRemove = true
	return h.files.Upsert(ctx, fileID, file)
}
