// Package apierror defines the error domain shared by UCS, FIS, IFRS and DCS.
//
// Core methods never return raw infrastructure errors; adapters translate
// storage, event-bus and key-store failures into one of the kinds below at
// the boundary. REST handlers map a kind to an HTTP status and a
// {exception_id, description, data} body; nothing downstream inspects a
// Go type switch against a driver-specific error.
package apierror

import (
	"fmt"
	"net/http"
	"time"
)

// ClientError represents a client-caused failure: not-found, already-exists,
// a state conflict (locked box, incomplete uploads), a validation or
// decryption format error, a checksum mismatch, wrong-file authorization, or
// an unknown storage alias. Always translates to a 4xx response.
type ClientError struct {
	ExceptionID string
	Status      int
	Message     string
	Data        map[string]any
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.ExceptionID, e.Message)
}

// NewClientError builds a ClientError with optional structured data.
func NewClientError(exceptionID string, status int, message string, data map[string]any) *ClientError {
	return &ClientError{ExceptionID: exceptionID, Status: status, Message: message, Data: data}
}

// TransientUpstreamError wraps a failure talking to the key store or object
// storage that was retried with bounded backoff inside the adapter and
// still failed. Surfaces as 500, 502 or 504 depending on the upstream.
type TransientUpstreamError struct {
	ExceptionID string
	Status      int
	Op          string
	Err         error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.ExceptionID, e.Op, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error {
	return e.Err
}

// NewTransientUpstreamError builds a TransientUpstreamError for the given
// upstream operation.
func NewTransientUpstreamError(exceptionID, op string, status int, err error) *TransientUpstreamError {
	return &TransientUpstreamError{ExceptionID: exceptionID, Status: status, Op: op, Err: err}
}

// CriticalInconsistencyError represents a fatal inconsistency between
// authoritative metadata and the state of an external system: a file
// registered but absent from storage, an orphaned multipart upload, a copy
// operation failure, or an outbox cleanup error. Always logged CRITICAL and
// surfaced as 500; the structured Data must carry enough context
// (file_id, bucket_id, storage_alias, upload_id) to act without re-reading
// logs.
type CriticalInconsistencyError struct {
	ExceptionID string
	Message     string
	Data        map[string]any
}

func (e *CriticalInconsistencyError) Error() string {
	return fmt.Sprintf("%s: %s", e.ExceptionID, e.Message)
}

// NewCriticalInconsistencyError builds a CriticalInconsistencyError.
func NewCriticalInconsistencyError(exceptionID, message string, data map[string]any) *CriticalInconsistencyError {
	return &CriticalInconsistencyError{ExceptionID: exceptionID, Message: message, Data: data}
}

// RetryAccessLaterError signals that an object is not yet staged and a
// staging request has been emitted. Surfaces as 202 Accepted with a
// Retry-After header set to RetryAfter.
type RetryAccessLaterError struct {
	RetryAfter time.Duration
}

func (e *RetryAccessLaterError) Error() string {
	return fmt.Sprintf("retryAccessLater: retry after %s", e.RetryAfter)
}

// NewRetryAccessLaterError builds a RetryAccessLaterError.
func NewRetryAccessLaterError(retryAfter time.Duration) *RetryAccessLaterError {
	return &RetryAccessLaterError{RetryAfter: retryAfter}
}

// Exception ids, verbatim strings served in HTTP response bodies. These are
// stable wire identifiers; renaming one is a breaking API change.
const (
	// UCS
	ExcNoSuchStorage            = "noSuchStorage"
	ExcBoxAlreadyExists         = "boxAlreadyExists"
	ExcBoxNotFound              = "boxNotFound"
	ExcIncompleteUploads        = "incompleteUploads"
	ExcLockedBox                = "lockedBox"
	ExcFileUploadAlreadyExists  = "fileUploadAlreadyExists"
	ExcMultipartUploadDupe      = "multipartUploadDupe"
	ExcUploadCompletionError    = "uploadCompletionError"
	ExcUploadAbortError         = "uploadAbortError"
	ExcOrphanedMultipartUpload  = "orphanedMultipartUploadError"
	ExcS3UploadNotFound         = "s3UploadNotFoundError"

	// FIS
	ExcDecryptionError         = "decryptionError"
	ExcWrongDecryptedFormat    = "wrongDecryptedFormatError"
	ExcVaultCommunicationError = "vaultCommunicationError"

	// IFRS
	ExcSizeMismatch              = "sizeMismatchError"
	ExcFileNotInInterrogation    = "fileNotInInterrogationError"
	ExcCopyOperationError        = "copyOperationError"
	ExcFileNotInRegistry         = "fileNotInRegistryError"
	ExcChecksumMismatch          = "checksumMismatchError"
	ExcFileInRegistryNotInStore  = "fileInRegistryButNotInStorageError"

	// DCS
	ExcDrsObjectNotFound   = "drsObjectNotFoundError"
	ExcAPICommunication    = "apiCommunicationError"
	ExcEnvelopeNotFound    = "envelopeNotFoundError"
	ExcCleanupError        = "cleanupError"
	ExcWrongFileAuthorized = "wrongFileAuthorizationError"

	// Shared
	ExcUnknownStorageAlias = "unknownStorageAliasError"
	ExcValidationError     = "validationError"
	ExcUnauthorized        = "unauthorizedError"
	ExcForbidden           = "forbiddenError"
	ExcInternal            = "internalError"
)

// Client error constructors, one per exception id that a REST edge returns
// directly (as opposed to ones only ever wrapped by CriticalInconsistencyError
// or TransientUpstreamError).

func NoSuchStorage(alias string) *ClientError {
	return NewClientError(ExcNoSuchStorage, http.StatusBadRequest,
		fmt.Sprintf("no storage configured for alias %q", alias),
		map[string]any{"storage_alias": alias})
}

func BoxAlreadyExists(boxID string) *ClientError {
	return NewClientError(ExcBoxAlreadyExists, http.StatusConflict,
		fmt.Sprintf("box %q already exists", boxID),
		map[string]any{"box_id": boxID})
}

func BoxNotFound(boxID string) *ClientError {
	return NewClientError(ExcBoxNotFound, http.StatusNotFound,
		fmt.Sprintf("box %q not found", boxID),
		map[string]any{"box_id": boxID})
}

func IncompleteUploads(boxID string, fileIDs []string) *ClientError {
	return NewClientError(ExcIncompleteUploads, http.StatusConflict,
		fmt.Sprintf("box %q has incomplete uploads", boxID),
		map[string]any{"box_id": boxID, "file_ids": fileIDs})
}

func LockedBox(boxID string) *ClientError {
	return NewClientError(ExcLockedBox, http.StatusConflict,
		fmt.Sprintf("box %q is locked", boxID),
		map[string]any{"box_id": boxID})
}

func FileUploadAlreadyExists(fileID string) *ClientError {
	return NewClientError(ExcFileUploadAlreadyExists, http.StatusConflict,
		fmt.Sprintf("file upload %q already exists", fileID),
		map[string]any{"file_id": fileID})
}

func MultipartUploadDupe(fileID string) *ClientError {
	return NewClientError(ExcMultipartUploadDupe, http.StatusConflict,
		fmt.Sprintf("multipart upload already initiated for %q", fileID),
		map[string]any{"file_id": fileID})
}

func S3UploadNotFound(fileID string) *ClientError {
	return NewClientError(ExcS3UploadNotFound, http.StatusConflict,
		fmt.Sprintf("storage has forgotten the multipart upload for %q", fileID),
		map[string]any{"file_id": fileID})
}

func DecryptionError(cause error) *ClientError {
	return NewClientError(ExcDecryptionError, http.StatusBadRequest,
		fmt.Sprintf("failed to decrypt upload metadata envelope: %v", cause), nil)
}

func WrongDecryptedFormat(cause error) *ClientError {
	return NewClientError(ExcWrongDecryptedFormat, http.StatusBadRequest,
		fmt.Sprintf("decrypted envelope did not match the expected schema: %v", cause), nil)
}

func SizeMismatch(fileID string, expected, actual int64) *ClientError {
	return NewClientError(ExcSizeMismatch, http.StatusUnprocessableEntity,
		fmt.Sprintf("object size mismatch for %q: expected %d, got %d", fileID, expected, actual),
		map[string]any{"file_id": fileID, "expected_size": expected, "actual_size": actual})
}

func FileNotInInterrogation(fileID string) *ClientError {
	return NewClientError(ExcFileNotInInterrogation, http.StatusNotFound,
		fmt.Sprintf("file %q not found in inbox storage", fileID),
		map[string]any{"file_id": fileID})
}

func FileNotInRegistry(accession string) *ClientError {
	return NewClientError(ExcFileNotInRegistry, http.StatusNotFound,
		fmt.Sprintf("accession %q not found in registry", accession),
		map[string]any{"accession": accession})
}

func ChecksumMismatch(accession, expected, actual string) *ClientError {
	return NewClientError(ExcChecksumMismatch, http.StatusUnprocessableEntity,
		fmt.Sprintf("checksum mismatch for %q", accession),
		map[string]any{"accession": accession, "expected_sha256": expected, "actual_sha256": actual})
}

func DrsObjectNotFound(drsID string) *ClientError {
	return NewClientError(ExcDrsObjectNotFound, http.StatusNotFound,
		fmt.Sprintf("DRS object %q not found", drsID),
		map[string]any{"drs_id": drsID})
}

func EnvelopeNotFound(drsID string) *ClientError {
	return NewClientError(ExcEnvelopeNotFound, http.StatusNotFound,
		fmt.Sprintf("envelope not available for %q", drsID),
		map[string]any{"drs_id": drsID})
}

func WrongFileAuthorization(tokenFileID, requestedFileID string) *ClientError {
	return NewClientError(ExcWrongFileAuthorized, http.StatusForbidden,
		"work-order token is not authorized for the requested file",
		map[string]any{"token_file_id": tokenFileID, "requested_file_id": requestedFileID})
}

func UnknownStorageAlias(alias string) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcUnknownStorageAlias,
		fmt.Sprintf("no storage configured for alias %q", alias),
		map[string]any{"storage_alias": alias})
}

func OrphanedMultipartUpload(fileID, storageAlias, s3UploadID string) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcOrphanedMultipartUpload,
		"crash detected between multipart init and FileUpload persistence; the stray upload must be aborted by an operator",
		map[string]any{"file_id": fileID, "storage_alias": storageAlias, "s3_upload_id": s3UploadID})
}

func CopyOperationError(fileID, bucket string, cause error) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcCopyOperationError,
		fmt.Sprintf("copy operation failed: %v", cause),
		map[string]any{"file_id": fileID, "bucket": bucket})
}

func FileInRegistryButNotInStorage(fileID, bucket, objectID string) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcFileInRegistryNotInStore,
		"file is registered but the object is absent from storage; operator intervention required",
		map[string]any{"file_id": fileID, "bucket": bucket, "object_id": objectID})
}

func CleanupError(storageAlias, objectID string) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcCleanupError,
		fmt.Sprintf("outbox object %q has no corresponding DrsObject", objectID),
		map[string]any{"storage_alias": storageAlias, "object_id": objectID})
}

func UploadCompletionError(fileID string, cause error) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcUploadCompletionError,
		fmt.Sprintf("failed to complete multipart upload: %v", cause),
		map[string]any{"file_id": fileID})
}

func UploadAbortError(fileID string, cause error) *CriticalInconsistencyError {
	return NewCriticalInconsistencyError(ExcUploadAbortError,
		fmt.Sprintf("failed to abort multipart upload: %v", cause),
		map[string]any{"file_id": fileID})
}

func VaultCommunicationError(op string, cause error) *TransientUpstreamError {
	return NewTransientUpstreamError(ExcVaultCommunicationError, op, http.StatusBadGateway, cause)
}

func APICommunicationError(op string, cause error) *TransientUpstreamError {
	return NewTransientUpstreamError(ExcAPICommunication, op, http.StatusBadGateway, cause)
}

