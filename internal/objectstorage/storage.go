// Package objectstorage is the uniform interface over one or more S3-compatible
// endpoints keyed by a storage alias, used by UCS, IFRS and DCS for every
// multipart upload, copy and presigned-URL operation.
package objectstorage

import (
	"context"
	"time"
)

// Storage is the leaves-first object storage abstraction every component
// depends on instead of a concrete S3 client. A storage alias resolves to a
// (bucket, endpoint, credentials) triple; callers never see the mapping.
type Storage interface {
	// InitMultipart starts a multipart upload for objectKey in the bucket
	// behind alias and returns an opaque upload id. Fails with
	// MultipartUploadDupe if an in-progress upload for the same key exists.
	InitMultipart(ctx context.Context, alias, objectKey string) (uploadID string, err error)

	// PartUploadURL returns a presigned PUT URL for the given part number,
	// valid for ttl. Fails with S3UploadNotFound if the multipart upload is
	// unknown to storage (checked with a ListParts call before presigning).
	PartUploadURL(ctx context.Context, alias, objectKey, uploadID string, partNo int32, ttl time.Duration) (url string, err error)

	// CompleteMultipart finalizes the upload by listing and assembling all
	// uploaded parts. Idempotent: if the object already exists, a storage
	// NotFound on retry is treated as success.
	CompleteMultipart(ctx context.Context, alias, objectKey, uploadID string) error

	// AbortMultipart cancels an in-progress multipart upload. A storage
	// NotFound (upload already gone) is swallowed.
	AbortMultipart(ctx context.Context, alias, objectKey, uploadID string) error

	// CopyObject copies an object across buckets, possibly across aliases.
	// AlreadyExists at the destination is a no-op.
	CopyObject(ctx context.Context, srcAlias, srcKey, dstAlias, dstKey string) error

	// GetObjectSize returns the size in bytes of objectKey.
	GetObjectSize(ctx context.Context, alias, objectKey string) (int64, error)

	// DoesObjectExist reports whether objectKey exists in the bucket behind alias.
	DoesObjectExist(ctx context.Context, alias, objectKey string) (bool, error)

	// DeleteObject removes objectKey. NotFound is not an error.
	DeleteObject(ctx context.Context, alias, objectKey string) error

	// ListAllObjectIDs lists every object key in the bucket behind alias.
	ListAllObjectIDs(ctx context.Context, alias string) ([]string, error)

	// PresignDownload returns a presigned GET URL for objectKey, valid for ttl.
	PresignDownload(ctx context.Context, alias, objectKey string, ttl time.Duration) (url string, err error)
}

// AliasConfig describes one configured storage alias: a bucket reachable at
// a specific S3-compatible endpoint with its own credentials.
type AliasConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Config is the full alias map for a service, keyed by storage alias name.
type Config struct {
	Aliases map[string]AliasConfig
}
