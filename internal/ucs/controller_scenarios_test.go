package ucs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/internal/apierror"
)

func TestCreateBoxRejectsUnknownAlias(t *testing.T) {
	ctrl, _, _, _ := newTestController()
	_, err := ctrl.CreateBox(context.Background(), "no-such-alias")
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
}

func TestCreateBoxPersistsUnlockedBox(t *testing.T) {
	ctrl, boxes, _, _ := newTestController()
	boxID, err := ctrl.CreateBox(context.Background(), "test")
	require.NoError(t, err)

	box, err := boxes.Get(context.Background(), boxID)
	require.NoError(t, err)
	assert.False(t, box.Locked)
	assert.Equal(t, "test", box.StorageAlias)
}

func TestFullUploadLifecycleLocksAndUnlocks(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _ := newTestController()

	boxID, err := ctrl.CreateBox(ctx, "test")
	require.NoError(t, err)

	fileID, err := ctrl.InitiateFileUpload(ctx, boxID, "sample.fastq.gz", "deadbeef", 12345)
	require.NoError(t, err)

	// Locking before completion must fail: an incomplete upload blocks it.
	err = ctrl.LockBox(ctx, boxID)
	require.Error(t, err)

	url, err := ctrl.GetPartUploadURL(ctx, fileID, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	require.NoError(t, ctrl.CompleteFileUpload(ctx, boxID, fileID))

	// Completing twice is idempotent.
	require.NoError(t, ctrl.CompleteFileUpload(ctx, boxID, fileID))

	box, err := ctrl.GetBox(ctx, boxID)
	require.NoError(t, err)
	assert.Equal(t, 1, box.FileCount)
	assert.Equal(t, int64(12345), box.Size)

	require.NoError(t, ctrl.LockBox(ctx, boxID))

	box, err = ctrl.GetBox(ctx, boxID)
	require.NoError(t, err)
	assert.True(t, box.Locked)

	// Locked box rejects new uploads.
	_, err = ctrl.InitiateFileUpload(ctx, boxID, "other.fastq.gz", "cafebabe", 99)
	require.Error(t, err)

	require.NoError(t, ctrl.UnlockBox(ctx, boxID))
	box, err = ctrl.GetBox(ctx, boxID)
	require.NoError(t, err)
	assert.False(t, box.Locked)
}

func TestInitiateFileUploadRejectsDuplicateAlias(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _ := newTestController()

	boxID, err := ctrl.CreateBox(ctx, "test")
	require.NoError(t, err)

	_, err = ctrl.InitiateFileUpload(ctx, boxID, "dup.bam", "aaaa", 10)
	require.NoError(t, err)

	_, err = ctrl.InitiateFileUpload(ctx, boxID, "dup.bam", "bbbb", 20)
	require.Error(t, err)
}

func TestInitiateFileUploadCleansUpOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, _, uploads, storage := newTestController()
	storage.failInit = true

	boxID, err := ctrl.CreateBox(ctx, "test")
	require.NoError(t, err)

	_, err = ctrl.InitiateFileUpload(ctx, boxID, "broken.bam", "aaaa", 10)
	require.Error(t, err)

	// The half-written FileUpload must not survive the failed InitMultipart.
	all, err := uploads.Find(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRemoveFileUploadAbortsIncompleteUpload(t *testing.T) {
	ctx := context.Background()
	ctrl, _, uploads, _ := newTestController()

	boxID, err := ctrl.CreateBox(ctx, "test")
	require.NoError(t, err)

	fileID, err := ctrl.InitiateFileUpload(ctx, boxID, "abandoned.bam", "aaaa", 10)
	require.NoError(t, err)

	require.NoError(t, ctrl.RemoveFileUpload(ctx, boxID, fileID))

	_, err = uploads.Get(ctx, fileID)
	require.Error(t, err)
}

func TestListFileIDsForBoxOnlyReturnsCompleted(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _ := newTestController()

	boxID, err := ctrl.CreateBox(ctx, "test")
	require.NoError(t, err)

	doneID, err := ctrl.InitiateFileUpload(ctx, boxID, "done.bam", "aaaa", 10)
	require.NoError(t, err)
	require.NoError(t, ctrl.CompleteFileUpload(ctx, boxID, doneID))

	_, err = ctrl.InitiateFileUpload(ctx, boxID, "pending.bam", "bbbb", 20)
	require.NoError(t, err)

	ids, err := ctrl.ListFileIDsForBox(ctx, boxID)
	require.NoError(t, err)
	assert.Equal(t, []string{doneID}, ids)
}

func TestGetBoxNotFound(t *testing.T) {
	ctrl, _, _, _ := newTestController()
	_, err := ctrl.GetBox(context.Background(), "missing-box")
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
}
