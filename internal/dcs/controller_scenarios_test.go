package dcs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/internal/apierror"
)

func TestAccessDrsObjectUnknownIDReturnsNotFound(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()
	_, err := ctrl.AccessDrsObject(context.Background(), "ghost")
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, apierror.ExcDrsObjectNotFound, clientErr.ExceptionID)
}

func TestAccessDrsObjectNotYetStagedRequestsStagingAndRetries(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, _, _, pub := newTestController()
	require.NoError(t, objects.Upsert(ctx, "acc-1", &DrsObject{
		FileID: "acc-1", ObjectID: "obj-1", StorageAlias: "hub1",
		DecryptedSHA256: "sha", DecryptedSize: 500_000_000, EncryptedSize: 500_000_100,
	}))

	_, err := ctrl.AccessDrsObject(ctx, "acc-1")
	require.Error(t, err)
	var retryErr *apierror.RetryAccessLaterError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 5*time.Second, retryErr.RetryAfter)
	assert.Equal(t, []string{"non_staged_file_requested"}, pub.Types())
}

func TestAccessDrsObjectStagedServesURLAndPublishesDownloadServed(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, storage, _, pub := newTestController()
	require.NoError(t, objects.Upsert(ctx, "acc-1", &DrsObject{
		FileID: "acc-1", ObjectID: "obj-1", StorageAlias: "hub1",
		DecryptedSHA256: "sha", EncryptedSize: 12357,
	}))
	storage.put("hub1-outbox", "obj-1")

	before := time.Now()
	resp, err := ctrl.AccessDrsObject(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12357), resp.Size)
	assert.Len(t, resp.AccessMethods, 1)
	assert.Equal(t, "s3", resp.AccessMethods[0].Type)
	assert.Equal(t, []string{"download_served"}, pub.Types())

	stored, err := objects.Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, stored.LastAccessed.Before(before.Add(-time.Millisecond)))
}

func TestAccessDrsObjectUnknownAliasIsCritical(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, _, _, _ := newTestController()
	ctrl.aliases = &fakeAliases{unconfigured: map[string]bool{"ghost-hub": true}}
	require.NoError(t, objects.Upsert(ctx, "acc-1", &DrsObject{FileID: "acc-1", StorageAlias: "ghost-hub"}))

	_, err := ctrl.AccessDrsObject(ctx, "acc-1")
	require.Error(t, err)
	var criticalErr *apierror.CriticalInconsistencyError
	require.True(t, errors.As(err, &criticalErr))
	assert.Equal(t, apierror.ExcUnknownStorageAlias, criticalErr.ExceptionID)
}

func TestRegisterNewFileCreatesObjectAndPublishes(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, _, _, pub := newTestController()

	require.NoError(t, ctrl.RegisterNewFile(ctx, "acc-1", "obj-1", "hub1", "secret-1", "sha", 100, 120, time.Now()))

	stored, err := objects.Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", stored.ObjectID)
	assert.False(t, stored.LastAccessed.IsZero())
	assert.Equal(t, []string{"file_registered_for_download"}, pub.Types())
}

func TestRegisterNewFileDuplicateIsDroppedNotErrored(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _, pub := newTestController()

	require.NoError(t, ctrl.RegisterNewFile(ctx, "acc-1", "obj-1", "hub1", "secret-1", "sha", 100, 120, time.Now()))
	require.NoError(t, ctrl.RegisterNewFile(ctx, "acc-1", "obj-1", "hub1", "secret-1", "sha", 100, 120, time.Now()))

	assert.Len(t, pub.Types(), 1)
}

func TestServeEnvelopeReturnsDecodedBytes(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, _, keys, _ := newTestController()
	require.NoError(t, objects.Upsert(ctx, "acc-1", &DrsObject{FileID: "acc-1", SecretID: "secret-1"}))
	keys.put("secret-1", []byte("envelope-bytes"))

	envelope, err := ctrl.ServeEnvelope(ctx, "acc-1", []byte("recipient-pk"))
	require.NoError(t, err)
	assert.Equal(t, []byte("envelope-bytes"), envelope)
}

func TestServeEnvelopeUnknownObjectReturnsNotFound(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()
	_, err := ctrl.ServeEnvelope(context.Background(), "ghost", []byte("pk"))
	require.Error(t, err)
	var clientErr *apierror.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, apierror.ExcDrsObjectNotFound, clientErr.ExceptionID)
}

func TestDeleteFileRemovesOutboxCopyAndRecordThenPublishes(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, storage, keys, pub := newTestController()
	require.NoError(t, objects.Upsert(ctx, "acc-1", &DrsObject{
		FileID: "acc-1", ObjectID: "obj-1", StorageAlias: "hub1", SecretID: "secret-1",
	}))
	storage.put("hub1-outbox", "obj-1")
	keys.put("secret-1", []byte("envelope"))

	require.NoError(t, ctrl.DeleteFile(ctx, "acc-1"))

	_, err := objects.Get(ctx, "acc-1")
	assert.Error(t, err)
	exists, err := storage.DoesObjectExist(ctx, "hub1-outbox", "obj-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{"file_deleted"}, pub.Types())
}

func TestDeleteFileUnknownAccessionIsNoOp(t *testing.T) {
	ctrl, _, _, _, pub := newTestController()
	require.NoError(t, ctrl.DeleteFile(context.Background(), "never-seen"))
	assert.Empty(t, pub.Types())
}

func TestCleanupOutboxDeletesOnlyExpiredObjects(t *testing.T) {
	ctx := context.Background()
	ctrl, objects, storage, _, _ := newTestController()
	storage.put("hub1-outbox", "obj-cached")
	storage.put("hub1-outbox", "obj-expired")

	require.NoError(t, objects.Upsert(ctx, "acc-cached", &DrsObject{
		FileID: "acc-cached", ObjectID: "obj-cached", StorageAlias: "hub1", LastAccessed: time.Now(),
	}))
	require.NoError(t, objects.Upsert(ctx, "acc-expired", &DrsObject{
		FileID: "acc-expired", ObjectID: "obj-expired", StorageAlias: "hub1",
		LastAccessed: time.Now().Add(-8 * 24 * time.Hour),
	}))

	require.NoError(t, ctrl.CleanupOutbox(ctx, "hub1"))

	cachedExists, err := storage.DoesObjectExist(ctx, "hub1-outbox", "obj-cached")
	require.NoError(t, err)
	assert.True(t, cachedExists)

	expiredExists, err := storage.DoesObjectExist(ctx, "hub1-outbox", "obj-expired")
	require.NoError(t, err)
	assert.False(t, expiredExists)

	_, err = objects.Get(ctx, "acc-cached")
	require.NoError(t, err)
	_, err = objects.Get(ctx, "acc-expired")
	require.NoError(t, err, "cleanup never deletes the DrsObject row, only the outbox copy")
}

func TestCleanupOutboxOrphanObjectIsLoggedNotFatal(t *testing.T) {
	ctx := context.Background()
	ctrl, _, storage, _, _ := newTestController()
	storage.put("hub1-outbox", "orphan-obj")

	err := ctrl.CleanupOutbox(ctx, "hub1")
	require.NoError(t, err)

	exists, err := storage.DoesObjectExist(ctx, "hub1-outbox", "orphan-obj")
	require.NoError(t, err)
	assert.True(t, exists, "an orphan object with no DrsObject row is left alone, not deleted")
}
