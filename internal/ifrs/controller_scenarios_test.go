package ifrs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/internal/apierror"
)

func TestRegisterFileCopiesAndPublishes(t *testing.T) {
	ctx := context.Background()
	ctrl, metadata, _, _, storage, pub := newTestController()

	storage.put("hub1", "file-1", 200)

	file := FileMetadata{
		FileID: "file-1", Accession: "acc-1", ObjectID: "obj-1", StorageAlias: "hub1",
		EncryptedSize: 200, DecryptedSize: 190, PartsMD5: []string{"a"}, PartsSHA256: []string{"b"},
	}
	require.NoError(t, ctrl.RegisterFile(ctx, file))

	stored, err := metadata.Get(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "hub1-permanent", stored.BucketID)
	assert.False(t, stored.ArchiveDate.IsZero())

	exists, err := storage.DoesObjectExist(ctx, "hub1-permanent", "file-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.Equal(t, []string{"file_internally_registered"}, pub.Types())
}

func TestRegisterFileDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _, storage, pub := newTestController()
	storage.put("hub1", "file-1", 200)

	file := FileMetadata{FileID: "file-1", Accession: "acc-1", StorageAlias: "hub1", EncryptedSize: 200}
	require.NoError(t, ctrl.RegisterFile(ctx, file))
	require.NoError(t, ctrl.RegisterFile(ctx, file))

	assert.Len(t, pub.Types(), 1)
}

func TestRegisterFileConflictingMetadataIsDroppedNotErrored(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _, storage, pub := newTestController()
	storage.put("hub1", "file-1", 200)

	first := FileMetadata{FileID: "file-1", Accession: "acc-1", StorageAlias: "hub1", EncryptedSize: 200}
	require.NoError(t, ctrl.RegisterFile(ctx, first))

	second := FileMetadata{FileID: "file-1", Accession: "acc-2", StorageAlias: "hub1", EncryptedSize: 200}
	err := ctrl.RegisterFile(ctx, second)
	require.NoError(t, err)
	assert.Len(t, pub.Types(), 1)
}

func TestRegisterFileMissingObjectReturnsNotInInterrogation(t *testing.T) {
	ctrl, _, _, _, _, _ := newTestController()
	err := ctrl.RegisterFile(context.Background(), FileMetadata{FileID: "ghost", StorageAlias: "hub1", EncryptedSize: 10})
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, apierror.ExcFileNotInInterrogation, clientErr.ExceptionID)
}

func TestRegisterFileSizeMismatch(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _, storage, _ := newTestController()
	storage.put("hub1", "file-1", 50)

	err := ctrl.RegisterFile(ctx, FileMetadata{FileID: "file-1", StorageAlias: "hub1", EncryptedSize: 999})
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, apierror.ExcSizeMismatch, clientErr.ExceptionID)
}

func TestRegisterFileUnknownStorageAlias(t *testing.T) {
	ctrl, _, _, _, _, _ := newTestController()
	ctrl.aliases = &fakeAliases{unconfigured: map[string]bool{"ghost-hub": true}}

	err := ctrl.RegisterFile(context.Background(), FileMetadata{FileID: "file-1", StorageAlias: "ghost-hub"})
	require.Error(t, err)
	var criticalErr *apierror.CriticalInconsistencyError
	require.True(t, errors.As(err, &criticalErr))
	assert.Equal(t, apierror.ExcUnknownStorageAlias, criticalErr.ExceptionID)
}

func TestStageRegisteredFileHappyPath(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _, storage, _ := newTestController()
	storage.put("hub1", "file-1", 200)
	require.NoError(t, ctrl.RegisterFile(ctx, FileMetadata{
		FileID: "file-1", Accession: "acc-1", StorageAlias: "hub1",
		EncryptedSize: 200, DecryptedSHA256: "sha-expected",
	}))

	err := ctrl.StageRegisteredFile(ctx, "acc-1", "sha-expected", "dl-obj-1", "hub1-outbox")
	require.NoError(t, err)

	exists, err := storage.DoesObjectExist(ctx, "hub1-outbox", "dl-obj-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStageRegisteredFileUnknownAccession(t *testing.T) {
	ctrl, _, _, _, _, _ := newTestController()
	err := ctrl.StageRegisteredFile(context.Background(), "missing", "sha", "obj", "bucket")
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, apierror.ExcFileNotInRegistry, clientErr.ExceptionID)
}

func TestStageRegisteredFileChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _, storage, _ := newTestController()
	storage.put("hub1", "file-1", 200)
	require.NoError(t, ctrl.RegisterFile(ctx, FileMetadata{
		FileID: "file-1", Accession: "acc-1", StorageAlias: "hub1",
		EncryptedSize: 200, DecryptedSHA256: "sha-expected",
	}))

	err := ctrl.StageRegisteredFile(ctx, "acc-1", "sha-wrong", "dl-obj-1", "hub1-outbox")
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, apierror.ExcChecksumMismatch, clientErr.ExceptionID)
}

func TestStageRegisteredFileMissingFromPermanentStorageIsCritical(t *testing.T) {
	ctx := context.Background()
	ctrl, metadata, _, _, _, _ := newTestController()
	require.NoError(t, metadata.Upsert(ctx, "file-1", &FileMetadata{
		FileID: "file-1", Accession: "acc-1", StorageAlias: "hub1",
		BucketID: "hub1-permanent", DecryptedSHA256: "sha",
	}))

	err := ctrl.StageRegisteredFile(ctx, "acc-1", "sha", "dl-obj", "hub1-outbox")
	require.Error(t, err)
	var criticalErr *apierror.CriticalInconsistencyError
	require.True(t, errors.As(err, &criticalErr))
	assert.Equal(t, apierror.ExcFileInRegistryNotInStore, criticalErr.ExceptionID)
}

func TestDeleteFileRemovesObjectAndRecordThenPublishes(t *testing.T) {
	ctx := context.Background()
	ctrl, metadata, _, _, storage, pub := newTestController()
	storage.put("hub1", "file-1", 200)
	require.NoError(t, ctrl.RegisterFile(ctx, FileMetadata{
		FileID: "file-1", Accession: "acc-1", StorageAlias: "hub1", EncryptedSize: 200,
	}))

	require.NoError(t, ctrl.DeleteFile(ctx, "acc-1"))

	_, err := metadata.Get(ctx, "file-1")
	assert.Error(t, err)
	exists, err := storage.DoesObjectExist(ctx, "hub1-permanent", "file-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{"file_internally_registered", "file_deleted"}, pub.Types())
}

func TestDeleteFileUnknownAccessionIsNoOp(t *testing.T) {
	ctrl, _, _, _, _, pub := newTestController()
	require.NoError(t, ctrl.DeleteFile(context.Background(), "never-seen"))
	assert.Empty(t, pub.Types())
}

func TestHandleFileUploadBeforeAccessionStoresPending(t *testing.T) {
	ctx := context.Background()
	ctrl, metadata, pending, _, _, pub := newTestController()

	require.NoError(t, ctrl.HandleFileUpload(ctx, PendingFileUpload{FileID: "file-2", StorageAlias: "hub1"}))

	_, err := pending.Get(ctx, "file-2")
	require.NoError(t, err)
	_, err = metadata.Get(ctx, "file-2")
	assert.Error(t, err)
	assert.Empty(t, pub.Types())
}

func TestHandleFileUploadAfterAccessionArchivesImmediately(t *testing.T) {
	ctx := context.Background()
	ctrl, metadata, _, accessions, storage, pub := newTestController()
	storage.put("hub1", "file-3", 10)
	require.NoError(t, accessions.Upsert(ctx, "file-3", &FileIDToAccession{FileID: "file-3", Accession: "acc-3"}))

	require.NoError(t, ctrl.HandleFileUpload(ctx, PendingFileUpload{
		FileID: "file-3", StorageAlias: "hub1", EncryptedSize: 10,
	}))

	_, err := metadata.Get(ctx, "file-3")
	require.NoError(t, err)
	assert.Equal(t, []string{"file_internally_registered"}, pub.Types())
}

func TestStoreAccessionsArchivesWhenUploadAlreadyPending(t *testing.T) {
	ctx := context.Background()
	ctrl, metadata, pending, _, storage, pub := newTestController()
	storage.put("hub1", "file-4", 10)
	require.NoError(t, pending.Upsert(ctx, "file-4", &PendingFileUpload{FileID: "file-4", StorageAlias: "hub1", EncryptedSize: 10}))

	require.NoError(t, ctrl.StoreAccessions(ctx, AccessionMap{"acc-4": "file-4"}))

	_, err := metadata.Get(ctx, "file-4")
	require.NoError(t, err)
	assert.Equal(t, []string{"file_internally_registered"}, pub.Types())
}

func TestStoreAccessionsStoresWhenUploadNotYetReceived(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, accessions, _, pub := newTestController()

	require.NoError(t, ctrl.StoreAccessions(ctx, AccessionMap{"acc-5": "file-5"}))

	_, err := accessions.Get(ctx, "file-5")
	require.NoError(t, err)
	assert.Empty(t, pub.Types())
}
