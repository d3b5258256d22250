package ucs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/objectstorage"
)

// BoxCreatedTopic is the topic UCS publishes box-lifecycle events to. No
// other service subscribes to it; it exists for operator visibility and
// future federation, not for the archival pipeline itself.
const BoxCreatedTopic = "file-upload-box-events"

// boxCreatedEvent is the payload for a "box_created" event.
type boxCreatedEvent struct {
	BoxID        string `json:"box_id"`
	StorageAlias string `json:"storage_alias"`
}

// Controller manages FileUploadBox, FileUpload and S3UploadDetails
// records and drives each box/file through its upload state machine.
type Controller struct {
	boxes    boxRepository
	uploads  fileUploadRepository
	s3       s3UploadDetailsRepository
	storage  objectstorage.Storage
	events   eventPublisher
	aliases  map[string]struct{}
	partTTL  time.Duration
}

// NewController wires a Controller from its ports. knownAliases is the set
// of storage aliases this deployment has configured; create_box rejects
// any other alias with NoSuchStorage, and initiate_file_upload fails with
// UnknownStorageAlias when the box's alias is not in the set.
func NewController(
	boxes *dao.DAO[FileUploadBox],
	uploads *dao.DAO[FileUpload],
	s3details *dao.DAO[S3UploadDetails],
	storage objectstorage.Storage,
	events eventbus.Publisher,
	knownAliases map[string]struct{},
	partUploadURLTTL time.Duration,
) *Controller {
	return &Controller{
		boxes:   boxes,
		uploads: uploads,
		s3:      s3details,
		storage: storage,
		events:  events,
		aliases: knownAliases,
		partTTL: partUploadURLTTL,
	}
}

// CreateBox persists a new FileUploadBox with a server-chosen ID under the
// given storage alias and emits a box_created event.
func (c *Controller) CreateBox(ctx context.Context, storageAlias string) (string, error) {
	if _, known := c.aliases[storageAlias]; !known {
		return "", apierror.NoSuchStorage(storageAlias)
	}

	box := &FileUploadBox{ID: uuid.NewString(), StorageAlias: storageAlias}
	if err := c.boxes.Upsert(ctx, box.ID, box); err != nil {
		return "", fmt.Errorf("ucs: inserting box: %w", err)
	}

	payload, err := json.Marshal(boxCreatedEvent{BoxID: box.ID, StorageAlias: storageAlias})
	if err != nil {
		return "", fmt.Errorf("ucs: marshaling box_created payload: %w", err)
	}
	if err := c.events.Publish(ctx, eventbus.Event{
		Topic: BoxCreatedTopic, Key: box.ID, Type: "box_created",
		Payload: payload, CorrelationID: box.ID, CreatedAt: time.Now(),
	}); err != nil {
		logger.ErrorCtx(ctx, "failed to publish box_created event", logger.KeyError, err.Error(), "box_id", box.ID)
	}

	return box.ID, nil
}

// GetBox loads a FileUploadBox or BoxNotFoundError.
func (c *Controller) GetBox(ctx context.Context, boxID string) (*FileUploadBox, error) {
	box, err := c.boxes.Get(ctx, boxID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, apierror.BoxNotFound(boxID)
		}
		return nil, fmt.Errorf("ucs: loading box %s: %w", boxID, err)
	}
	return box, nil
}

func (c *Controller) getUnlockedBox(ctx context.Context, boxID string) (*FileUploadBox, error) {
	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if box.Locked {
		return nil, apierror.LockedBox(boxID)
	}
	return box, nil
}

// LockBox locks boxID, failing with IncompleteUploadsError if any
// FileUpload in the box is not yet completed. Idempotent: locking an
// already-locked box succeeds with no change.
func (c *Controller) LockBox(ctx context.Context, boxID string) error {
	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if box.Locked {
		return nil
	}

	incomplete, err := c.uploads.Find(ctx, bson.M{"box_id": boxID, "completed": false})
	if err != nil {
		return fmt.Errorf("ucs: listing incomplete uploads for box %s: %w", boxID, err)
	}
	if len(incomplete) > 0 {
		fileIDs := make([]string, 0, len(incomplete))
		for _, u := range incomplete {
			fileIDs = append(fileIDs, u.ID)
		}
		sort.Strings(fileIDs)
		return apierror.IncompleteUploads(boxID, fileIDs)
	}

	box.Locked = true
	if err := c.boxes.Upsert(ctx, box.ID, box); err != nil {
		return fmt.Errorf("ucs: locking box %s: %w", boxID, err)
	}
	return nil
}

// UnlockBox unlocks boxID.
func (c *Controller) UnlockBox(ctx context.Context, boxID string) error {
	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if !box.Locked {
		return nil
	}
	box.Locked = false
	if err := c.boxes.Upsert(ctx, box.ID, box); err != nil {
		return fmt.Errorf("ucs: unlocking box %s: %w", boxID, err)
	}
	return nil
}

// ListFileIDsForBox returns the IDs of every completed FileUpload in boxID.
func (c *Controller) ListFileIDsForBox(ctx context.Context, boxID string) ([]string, error) {
	if _, err := c.GetBox(ctx, boxID); err != nil {
		return nil, err
	}

	uploads, err := c.uploads.Find(ctx, bson.M{"box_id": boxID, "completed": true})
	if err != nil {
		return nil, fmt.Errorf("ucs: listing uploads for box %s: %w", boxID, err)
	}
	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// InitiateFileUpload creates a FileUpload for alias within boxID and starts
// a multipart upload in the box's storage alias, returning the new
// file_id.
func (c *Controller) InitiateFileUpload(ctx context.Context, boxID, alias, checksum string, size int64) (string, error) {
	box, err := c.getUnlockedBox(ctx, boxID)
	if err != nil {
		return "", err
	}

	existing, err := c.uploads.Find(ctx, bson.M{"box_id": boxID, "alias": alias})
	if err != nil {
		return "", fmt.Errorf("ucs: checking for existing alias %s: %w", alias, err)
	}
	if len(existing) > 0 {
		return "", apierror.FileUploadAlreadyExists(alias)
	}

	if _, known := c.aliases[box.StorageAlias]; !known {
		return "", apierror.UnknownStorageAlias(box.StorageAlias)
	}

	fileID := uuid.NewString()
	upload := &FileUpload{ID: fileID, BoxID: boxID, Alias: alias, Size: size, Checksum: checksum}
	if err := c.uploads.Upsert(ctx, fileID, upload); err != nil {
		return "", fmt.Errorf("ucs: inserting file upload %s: %w", fileID, err)
	}

	initiated := time.Now()
	s3UploadID, err := c.storage.InitMultipart(ctx, box.StorageAlias, fileID)
	if err != nil {
		// A crash between inserting the FileUpload and persisting
		// S3UploadDetails leaves a dangling S3-side upload for this
		// object key with no way to recover its upload ID
		// programmatically; delete the FileUpload so the caller can
		// retry with a fresh file_id, and surface the stray upload for
		// an operator to abort by hand.
		logger.ErrorCtx(ctx, "orphaned multipart upload detected", logger.KeyError, err.Error(), "file_id", fileID, "storage_alias", box.StorageAlias)
		if delErr := c.uploads.Delete(ctx, fileID); delErr != nil {
			logger.ErrorCtx(ctx, "failed to clean up orphaned FileUpload", logger.KeyError, delErr.Error(), "file_id", fileID)
		}
		return "", apierror.OrphanedMultipartUpload(fileID, box.StorageAlias, "")
	}

	details := &S3UploadDetails{FileID: fileID, StorageAlias: box.StorageAlias, S3UploadID: s3UploadID, Initiated: initiated}
	if err := c.s3.Upsert(ctx, fileID, details); err != nil {
		return "", fmt.Errorf("ucs: inserting s3 upload details for %s: %w", fileID, err)
	}

	return fileID, nil
}

// GetPartUploadURL returns a presigned PUT URL for part partNo of file_id's
// multipart upload.
func (c *Controller) GetPartUploadURL(ctx context.Context, fileID string, partNo int32) (string, error) {
	details, err := c.s3.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return "", apierror.S3UploadNotFound(fileID)
		}
		return "", fmt.Errorf("ucs: loading s3 upload details for %s: %w", fileID, err)
	}

	url, err := c.storage.PartUploadURL(ctx, details.StorageAlias, fileID, details.S3UploadID, partNo, c.partTTL)
	if err != nil {
		return "", apierror.S3UploadNotFound(fileID)
	}
	return url, nil
}

// CompleteFileUpload instructs storage to finalize file_id's multipart
// upload and recomputes the box's stats. Idempotent: calling this again on
// an already-completed FileUpload only recomputes box stats.
func (c *Controller) CompleteFileUpload(ctx context.Context, boxID, fileID string) error {
	box, err := c.getUnlockedBox(ctx, boxID)
	if err != nil {
		return err
	}

	upload, err := c.uploads.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return apierror.NewClientError("fileUploadNotFound", 404, fmt.Sprintf("FileUpload %s not found", fileID), nil)
		}
		return fmt.Errorf("ucs: loading file upload %s: %w", fileID, err)
	}

	if upload.Completed {
		return c.updateBoxStats(ctx, box)
	}

	details, err := c.s3.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return apierror.S3UploadNotFound(fileID)
		}
		return fmt.Errorf("ucs: loading s3 upload details for %s: %w", fileID, err)
	}

	if err := c.storage.CompleteMultipart(ctx, details.StorageAlias, fileID, details.S3UploadID); err != nil {
		return apierror.UploadCompletionError(fileID, err)
	}

	now := time.Now()
	upload.Completed = true
	details.Completed = &now
	if err := c.uploads.Upsert(ctx, fileID, upload); err != nil {
		return fmt.Errorf("ucs: marking upload %s complete: %w", fileID, err)
	}
	if err := c.s3.Upsert(ctx, fileID, details); err != nil {
		return fmt.Errorf("ucs: marking s3 upload details %s complete: %w", fileID, err)
	}

	return c.updateBoxStats(ctx, box)
}

// RemoveFileUpload deletes a FileUpload, aborting its multipart upload if
// incomplete or deleting the finished object if complete.
func (c *Controller) RemoveFileUpload(ctx context.Context, boxID, fileID string) error {
	box, err := c.getUnlockedBox(ctx, boxID)
	if err != nil {
		return err
	}

	upload, err := c.uploads.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			logger.InfoCtx(ctx, "file upload not found, presumed already deleted", "file_id", fileID)
			return nil
		}
		return fmt.Errorf("ucs: loading file upload %s: %w", fileID, err)
	}

	details, err := c.s3.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return apierror.S3UploadNotFound(fileID)
		}
		return fmt.Errorf("ucs: loading s3 upload details for %s: %w", fileID, err)
	}

	if upload.Completed {
		if rmErr := c.removeCompletedUpload(ctx, details); rmErr != nil {
			return rmErr
		}
	} else if err := c.storage.AbortMultipart(ctx, details.StorageAlias, fileID, details.S3UploadID); err != nil {
		return apierror.UploadAbortError(fileID, err)
	}

	if err := c.s3.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("ucs: deleting s3 upload details for %s: %w", fileID, err)
	}
	if err := c.uploads.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("ucs: deleting file upload %s: %w", fileID, err)
	}

	return c.updateBoxStats(ctx, box)
}

func (c *Controller) removeCompletedUpload(ctx context.Context, details *S3UploadDetails) error {
	exists, err := c.storage.DoesObjectExist(ctx, details.StorageAlias, details.FileID)
	if err != nil {
		return fmt.Errorf("ucs: checking object existence for %s: %w", details.FileID, err)
	}
	if exists {
		if err := c.storage.DeleteObject(ctx, details.StorageAlias, details.FileID); err != nil {
			return fmt.Errorf("ucs: deleting object %s: %w", details.FileID, err)
		}
		return nil
	}
	// Object absent: the upload may have already been cancelled, with the
	// user only ever seeing a transient error. Abort blindly to be sure.
	if err := c.storage.AbortMultipart(ctx, details.StorageAlias, details.FileID, details.S3UploadID); err != nil {
		return apierror.UploadAbortError(details.FileID, err)
	}
	return nil
}

// updateBoxStats recomputes file_count/size from completed uploads and
// persists only on change, so a no-op recomputation writes nothing.
func (c *Controller) updateBoxStats(ctx context.Context, box *FileUploadBox) error {
	completed, err := c.uploads.Find(ctx, bson.M{"box_id": box.ID, "completed": true})
	if err != nil {
		return fmt.Errorf("ucs: recomputing stats for box %s: %w", box.ID, err)
	}

	var fileCount int
	var totalSize int64
	for _, u := range completed {
		fileCount++
		totalSize += u.Size
	}

	if fileCount == box.FileCount && totalSize == box.Size {
		return nil
	}
	box.FileCount = fileCount
	box.Size = totalSize
	if err := c.boxes.Upsert(ctx, box.ID, box); err != nil {
		return fmt.Errorf("ucs: persisting stats for box %s: %w", box.ID, err)
	}
	return nil
}

// DeleteBox removes a FileUploadBox record outright. Exposed only to
// operator tooling, never to the public REST surface: the data model
// treats box deletion as an administrative action, not a user-driven one.
func (c *Controller) DeleteBox(ctx context.Context, boxID string) error {
	return c.boxes.Delete(ctx, boxID)
}
