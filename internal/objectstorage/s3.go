package objectstorage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/telemetry"
)

// aliasBinding holds the resolved S3 client, bucket and presigner for one
// configured storage alias.
type aliasBinding struct {
	client    *s3.Client
	bucket    string
	presigner *s3.PresignClient
}

// S3Storage implements Storage over one *s3.Client per configured alias.
type S3Storage struct {
	aliases map[string]*aliasBinding
}

// NewS3Storage builds an S3Storage by creating one client per alias in cfg.
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	aliases := make(map[string]*aliasBinding, len(cfg.Aliases))

	for alias, ac := range cfg.Aliases {
		binding, err := newAliasBinding(ctx, ac)
		if err != nil {
			return nil, fmt.Errorf("configuring storage alias %q: %w", alias, err)
		}
		aliases[alias] = binding
	}

	return &S3Storage{aliases: aliases}, nil
}

func newAliasBinding(ctx context.Context, ac AliasConfig) (*aliasBinding, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if ac.Region != "" {
		opts = append(opts, awsconfig.WithRegion(ac.Region))
	}
	if ac.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ac.AccessKeyID, ac.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if ac.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(ac.Endpoint)
		})
	}
	if ac.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	presigner := s3.NewPresignClient(client)

	return &aliasBinding{client: client, bucket: ac.Bucket, presigner: presigner}, nil
}

func (s *S3Storage) resolve(alias string) (*aliasBinding, error) {
	b, ok := s.aliases[alias]
	if !ok {
		return nil, apierror.UnknownStorageAlias(alias)
	}
	return b, nil
}

func (s *S3Storage) InitMultipart(ctx context.Context, alias, objectKey string) (string, error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageInitMultipart, alias, "", telemetry.ObjectID(objectKey))
	defer span.End()

	b, err := s.resolve(alias)
	if err != nil {
		return "", err
	}

	inProgress, err := b.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(objectKey),
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("list multipart uploads: %w", err)
	}
	for _, u := range inProgress.Uploads {
		if aws.ToString(u.Key) == objectKey {
			return "", apierror.MultipartUploadDupe(objectKey)
		}
	}

	result, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("create multipart upload: %w", err)
	}

	return aws.ToString(result.UploadId), nil
}

func (s *S3Storage) PartUploadURL(ctx context.Context, alias, objectKey, uploadID string, partNo int32, ttl time.Duration) (string, error) {
	b, err := s.resolve(alias)
	if err != nil {
		return "", err
	}

	// Presigning is local and never contacts storage, so check first that
	// the multipart upload is still known.
	if _, err := b.client.ListParts(ctx, &s3.ListPartsInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
	}); err != nil {
		if isNotFoundError(err) {
			return "", apierror.S3UploadNotFound(objectKey)
		}
		return "", fmt.Errorf("list parts: %w", err)
	}

	req, err := b.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(objectKey),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNo),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		if isNotFoundError(err) {
			return "", apierror.S3UploadNotFound(objectKey)
		}
		return "", fmt.Errorf("presign upload part: %w", err)
	}

	return req.URL, nil
}

func (s *S3Storage) CompleteMultipart(ctx context.Context, alias, objectKey, uploadID string) error {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageCompleteUpload, alias, "", telemetry.ObjectID(objectKey), telemetry.UploadID(uploadID))
	defer span.End()

	b, err := s.resolve(alias)
	if err != nil {
		return err
	}

	parts, err := s.listParts(ctx, b, objectKey, uploadID)
	if err != nil {
		if isNotFoundError(err) {
			exists, existsErr := s.DoesObjectExist(ctx, alias, objectKey)
			if existsErr == nil && exists {
				// Crash between S3-side success and the caller's bookkeeping;
				// the object is already there, so treat the retry as success.
				return nil
			}
		}
		return fmt.Errorf("list parts: %w", err)
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(objectKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		if isNotFoundError(err) {
			exists, existsErr := s.DoesObjectExist(ctx, alias, objectKey)
			if existsErr == nil && exists {
				return nil
			}
		}
		telemetry.RecordError(ctx, err)
		return err
	}

	return nil
}

func (s *S3Storage) listParts(ctx context.Context, b *aliasBinding, objectKey, uploadID string) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart

	paginator := s3.NewListPartsPaginator(b.client, &s3.ListPartsInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Parts {
			parts = append(parts, types.CompletedPart{
				ETag:       p.ETag,
				PartNumber: p.PartNumber,
			})
		}
	}

	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	return parts, nil
}

func (s *S3Storage) AbortMultipart(ctx context.Context, alias, objectKey, uploadID string) error {
	b, err := s.resolve(alias)
	if err != nil {
		return err
	}

	_, err = b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) || isNotFoundError(err) {
			return nil
		}
		return apierror.UploadAbortError(objectKey, err)
	}

	return nil
}

func (s *S3Storage) CopyObject(ctx context.Context, srcAlias, srcKey, dstAlias, dstKey string) error {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageCopy, dstAlias, "", telemetry.ObjectID(dstKey))
	defer span.End()

	src, err := s.resolve(srcAlias)
	if err != nil {
		return err
	}
	dst, err := s.resolve(dstAlias)
	if err != nil {
		return err
	}

	copySource := fmt.Sprintf("%s/%s", src.bucket, srcKey)
	_, err = dst.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		if isAlreadyExistsError(err) {
			return nil
		}
		telemetry.RecordError(ctx, err)
		return apierror.CopyOperationError(dstKey, dst.bucket, err)
	}

	return nil
}

func (s *S3Storage) GetObjectSize(ctx context.Context, alias, objectKey string) (int64, error) {
	b, err := s.resolve(alias)
	if err != nil {
		return 0, err
	}

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return 0, fmt.Errorf("head object: %w", err)
	}

	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3Storage) DoesObjectExist(ctx context.Context, alias, objectKey string) (bool, error) {
	b, err := s.resolve(alias)
	if err != nil {
		return false, err
	}

	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object: %w", err)
	}

	return true, nil
}

func (s *S3Storage) DeleteObject(ctx context.Context, alias, objectKey string) error {
	b, err := s.resolve(alias)
	if err != nil {
		return err
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

func (s *S3Storage) ListAllObjectIDs(ctx context.Context, alias string) ([]string, error) {
	b, err := s.resolve(alias)
	if err != nil {
		return nil, err
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

func (s *S3Storage) PresignDownload(ctx context.Context, alias, objectKey string, ttl time.Duration) (string, error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStoragePresign, alias, "", telemetry.ObjectID(objectKey))
	defer span.End()

	b, err := s.resolve(alias)
	if err != nil {
		return "", err
	}

	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("presign get object: %w", err)
	}

	logger.DebugCtx(ctx, "presigned download URL issued", logger.KeyStorageAlias, alias, logger.KeyObjectID, objectKey)

	return req.URL, nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	var nsu *types.NoSuchUpload
	if errors.As(err, &nf) || errors.As(err, &nsk) || errors.As(err, &nsu) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NoSuchUpload") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "AlreadyExists") || strings.Contains(errStr, "PreconditionFailed")
}

var _ Storage = (*S3Storage)(nil)
