package dcs

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
	"github.com/marmos91/dittofs/internal/keystoreclient"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/telemetry"
	"github.com/marmos91/dittofs/pkg/drs"
)

const (
	nonStagedFileRequestedTopic    = "non-staged-file-requested"
	downloadServedTopic            = "download-served"
	fileRegisteredForDownloadTopic = "file-registered-for-download"
	fileDeletedTopic               = "file-deleted"
)

// RegistryController implements access_drs_object, register_new_file,
// serve_envelope, delete_file and cleanup_outbox: the DRS object
// registry, its staging-on-demand flow and its outbox garbage collector.
type RegistryController struct {
	objects drsObjectRepository
	events  eventPublisher
	storage objectStore
	keys    keyStore
	aliases aliasResolver

	drsServerURI string // already validated to match ^drs://.+/$

	stagingSpeedBytesPerSec float64
	retryAfterMin           time.Duration
	retryAfterMax           time.Duration

	presignedURLExpiresAfter time.Duration
	urlExpirationBuffer      time.Duration
	outboxCacheTimeout       time.Duration
}

// NewRegistryController builds a RegistryController. stagingSpeedMBs is
// megabytes per second, matching serviceconfig.Config's own field type.
func NewRegistryController(
	objects drsObjectRepository,
	events eventPublisher,
	storage objectStore,
	keys keyStore,
	aliases aliasResolver,
	drsServerURI string,
	stagingSpeedMBs float64,
	retryAfterMin, retryAfterMax time.Duration,
	presignedURLExpiresAfter, urlExpirationBuffer, outboxCacheTimeout time.Duration,
) *RegistryController {
	return &RegistryController{
		objects:                  objects,
		events:                   events,
		storage:                  storage,
		keys:                     keys,
		aliases:                  aliases,
		drsServerURI:             drsServerURI,
		stagingSpeedBytesPerSec:  stagingSpeedMBs * 1e6,
		retryAfterMin:            retryAfterMin,
		retryAfterMax:            retryAfterMax,
		presignedURLExpiresAfter: presignedURLExpiresAfter,
		urlExpirationBuffer:      urlExpirationBuffer,
		outboxCacheTimeout:       outboxCacheTimeout,
	}
}

func (c *RegistryController) selfURI(drsID string) string {
	return c.drsServerURI + drsID
}

// CacheMaxAge is the Cache-Control max-age the REST edge should set on a
// successful presigned-URL response: the presign TTL minus a safety
// buffer, floored at the buffer itself so the cached value never
// outlives the buffer's own margin.
func (c *RegistryController) CacheMaxAge() time.Duration {
	maxAge := c.presignedURLExpiresAfter - c.urlExpirationBuffer
	if maxAge < c.urlExpirationBuffer {
		return c.urlExpirationBuffer
	}
	return maxAge
}

// AccessDrsObject serves a presigned download URL for drsID if the
// object already exists in its outbox, or requests staging and returns
// RetryAccessLaterError otherwise.
func (c *RegistryController) AccessDrsObject(ctx context.Context, drsID string) (*drs.ObjectResponse, error) {
	object, err := c.objects.Get(ctx, drsID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, apierror.DrsObjectNotFound(drsID)
		}
		return nil, err
	}

	outboxAlias, ok := c.aliases.OutboxAlias(object.StorageAlias)
	if !ok {
		return nil, apierror.UnknownStorageAlias(object.StorageAlias)
	}

	exists, err := c.storage.DoesObjectExist(ctx, outboxAlias, object.ObjectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := c.requestStaging(ctx, object, outboxAlias); err != nil {
			return nil, err
		}
		return nil, apierror.NewRetryAccessLaterError(c.retryAfter(object.DecryptedSize))
	}

	url, err := c.storage.PresignDownload(ctx, outboxAlias, object.ObjectID, c.presignedURLExpiresAfter)
	if err != nil {
		return nil, err
	}

	object.LastAccessed = time.Now()
	if err := c.objects.Upsert(ctx, object.FileID, object); err != nil {
		return nil, err
	}

	if err := c.publishDownloadServed(ctx, object, outboxAlias); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "served drs object access", logger.KeyDrsID, drsID)

	return &drs.ObjectResponse{
		ID:          object.FileID,
		SelfURI:     c.selfURI(object.FileID),
		Size:        object.EncryptedSize,
		CreatedTime: object.CreationDate,
		Checksums:   []drs.Checksum{{Type: "sha-256", Checksum: object.DecryptedSHA256}},
		AccessMethods: []drs.AccessMethod{
			{Type: "s3", AccessURL: map[string]string{"url": url}},
		},
	}, nil
}

// retryAfter estimates staging time from decryptedSize at the configured
// staging speed, clamped to [retryAfterMin, retryAfterMax].
func (c *RegistryController) retryAfter(decryptedSize int64) time.Duration {
	estimate := time.Duration(float64(decryptedSize) / c.stagingSpeedBytesPerSec * float64(time.Second))
	if estimate < c.retryAfterMin {
		return c.retryAfterMin
	}
	if estimate > c.retryAfterMax {
		return c.retryAfterMax
	}
	return estimate
}

func (c *RegistryController) requestStaging(ctx context.Context, object *DrsObject, outboxAlias string) error {
	logger.InfoCtx(ctx, "drs object not in outbox, requesting staging", logger.KeyDrsID, object.FileID)

	payload, err := json.Marshal(nonStagedFileRequestedEvent{
		Accession:        object.FileID,
		DecryptedSHA256:  object.DecryptedSHA256,
		DownloadObjectID: object.ObjectID,
		DownloadBucketID: outboxAlias,
	})
	if err != nil {
		return err
	}
	return c.events.Publish(ctx, eventbus.Event{
		Topic: nonStagedFileRequestedTopic, Key: object.FileID,
		Type: "non_staged_file_requested", Payload: payload, CreatedAt: time.Now(),
	})
}

func (c *RegistryController) publishDownloadServed(ctx context.Context, object *DrsObject, outboxAlias string) error {
	payload, err := json.Marshal(downloadServedEvent{
		Accession: object.FileID, StorageAlias: object.StorageAlias,
		DecryptedSHA256: object.DecryptedSHA256,
		TargetObjectID:  object.ObjectID, TargetBucketID: outboxAlias,
	})
	if err != nil {
		return err
	}
	return c.events.Publish(ctx, eventbus.Event{
		Topic: downloadServedTopic, Key: object.FileID,
		Type: "download_served", Payload: payload, CreatedAt: time.Now(),
	})
}

// ServeEnvelope fetches a Crypt4GH envelope personalized for
// recipientPublicKey from the key store, for the secret backing drsID.
func (c *RegistryController) ServeEnvelope(ctx context.Context, drsID string, recipientPublicKey []byte) ([]byte, error) {
	object, err := c.objects.Get(ctx, drsID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, apierror.DrsObjectNotFound(drsID)
		}
		return nil, err
	}

	envelope, err := c.keys.GetEnvelope(ctx, object.SecretID, recipientPublicKey)
	if err != nil {
		if keystoreclient.IsNotFound(err) {
			return nil, apierror.EnvelopeNotFound(drsID)
		}
		return nil, apierror.APICommunicationError("fetch_envelope", err)
	}
	return envelope, nil
}

// RegisterNewFile creates a DrsObject from an accepted archival. A
// duplicate accession is logged and dropped, matching register_new_file's
// own idempotence contract.
func (c *RegistryController) RegisterNewFile(ctx context.Context, accession, objectID, storageAlias, secretID, decryptedSHA256 string, decryptedSize, encryptedSize int64, creationDate time.Time) error {
	_, err := c.objects.Get(ctx, accession)
	if err == nil {
		logger.InfoCtx(ctx, "drs object already registered, dropping duplicate", logger.KeyDrsID, accession)
		return nil
	}
	if !errors.Is(err, dao.ErrNotFound) {
		return err
	}

	object := &DrsObject{
		FileID: accession, ObjectID: objectID, SecretID: secretID,
		StorageAlias: storageAlias, DecryptedSHA256: decryptedSHA256,
		DecryptedSize: decryptedSize, EncryptedSize: encryptedSize,
		CreationDate: creationDate, LastAccessed: time.Now(),
	}
	if err := c.objects.Upsert(ctx, accession, object); err != nil {
		return err
	}

	payload, err := json.Marshal(fileRegisteredForDownloadEvent{
		Accession: accession, DecryptedSHA256: decryptedSHA256,
		UploadDate: creationDate, DrsURI: c.selfURI(accession),
	})
	if err != nil {
		return err
	}
	if err := c.events.Publish(ctx, eventbus.Event{
		Topic: fileRegisteredForDownloadTopic, Key: accession,
		Type: "file_registered_for_download", Payload: payload, CreatedAt: time.Now(),
	}); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "registered new drs object", logger.KeyDrsID, accession)
	return nil
}

// HandleFileInternallyRegistered adapts the wire event into RegisterNewFile.
func (c *RegistryController) HandleFileInternallyRegistered(ctx context.Context, payload []byte) error {
	var event fileInternallyRegisteredEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apierror.WrongDecryptedFormat(err)
	}
	return c.RegisterNewFile(ctx, event.Accession, event.ObjectID, event.StorageAlias,
		event.SecretID, event.DecryptedSHA256, event.DecryptedSize, event.EncryptedSize, time.Now())
}

// DeleteFile removes a DrsObject's outbox copy, key store secret and
// registry record, then publishes FileDeleted. A missing record is the
// desired end state, not an error. A key store failure is logged and
// skipped; a storage or database failure is returned.
func (c *RegistryController) DeleteFile(ctx context.Context, accession string) error {
	object, err := c.objects.Get(ctx, accession)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			logger.InfoCtx(ctx, "delete requested for already-deleted drs object", logger.KeyDrsID, accession)
			return nil
		}
		return err
	}

	if err := c.keys.DeleteSecret(ctx, object.SecretID); err != nil {
		logger.WarnCtx(ctx, "key store secret delete failed, continuing", logger.KeyError, err.Error())
	}

	if outboxAlias, ok := c.aliases.OutboxAlias(object.StorageAlias); ok {
		if err := c.storage.DeleteObject(ctx, outboxAlias, object.ObjectID); err != nil {
			return err
		}
	}

	if err := c.objects.Delete(ctx, accession); err != nil {
		return err
	}

	payload, err := json.Marshal(fileDeletedEvent{Accession: accession})
	if err != nil {
		return err
	}
	if err := c.events.Publish(ctx, eventbus.Event{
		Topic: fileDeletedTopic, Key: accession,
		Type: "file_deleted", Payload: payload, CreatedAt: time.Now(),
	}); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "deleted drs object", logger.KeyDrsID, accession)
	return nil
}

// HandleFileDeletionRequested adapts the wire event into DeleteFile.
func (c *RegistryController) HandleFileDeletionRequested(ctx context.Context, payload []byte) error {
	var event fileDeletionRequestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apierror.WrongDecryptedFormat(err)
	}
	return c.DeleteFile(ctx, event.Accession)
}

// CleanupOutbox enumerates every object in the outbox bucket behind
// hubAlias and deletes those whose DrsObject.last_accessed has aged past
// outbox_cache_timeout. An outbox object with no matching DrsObject is a
// CleanupError: logged, not fatal, cleanup continues with the rest.
func (c *RegistryController) CleanupOutbox(ctx context.Context, hubAlias string) error {
	metrics := telemetry.GlobalMetrics()

	outboxAlias, ok := c.aliases.OutboxAlias(hubAlias)
	if !ok {
		return apierror.UnknownStorageAlias(hubAlias)
	}

	objectIDs, err := c.storage.ListAllObjectIDs(ctx, outboxAlias)
	if err != nil {
		return err
	}

	threshold := time.Now().Add(-c.outboxCacheTimeout)

	for _, objectID := range objectIDs {
		rows, err := c.objects.Find(ctx, bson.M{"object_id": objectID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			cleanupErr := apierror.CleanupError(outboxAlias, objectID)
			logger.ErrorCtx(ctx, "outbox object has no matching drs object", logger.KeyError, cleanupErr.Error())
			metrics.CleanupErrors.Inc()
			metrics.CriticalErrors.WithLabelValues("dcs").Inc()
			continue
		}

		object := rows[0]
		if object.LastAccessed.After(threshold) {
			continue
		}

		logger.InfoCtx(ctx, "evicting expired outbox object", logger.KeyDrsID, object.FileID)
		if err := c.storage.DeleteObject(ctx, outboxAlias, objectID); err != nil {
			cleanupErr := apierror.CleanupError(outboxAlias, objectID)
			logger.ErrorCtx(ctx, fmt.Sprintf("%s: %v", cleanupErr.Error(), err), logger.KeyError, err.Error())
			metrics.CleanupErrors.Inc()
			continue
		}
		metrics.CleanupDeletions.Inc()
	}
	return nil
}
