package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so log aggregation
// and querying stay uniform across UCS, FIS, IFRS and DCS.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request / Event correlation
	// ========================================================================
	KeyRequestID     = "request_id"     // HTTP request id (chi middleware.RequestID)
	KeyCorrelationID = "correlation_id" // Event correlation id, carried across the whole file lifecycle
	KeyTopic         = "topic"          // Kafka topic
	KeyEventType     = "event_type"     // Domain event type/schema name
	KeyMessageKey    = "message_key"    // Kafka/event message key (usually file_id or accession)

	// ========================================================================
	// File lifecycle identifiers
	// ========================================================================
	KeyFileID       = "file_id"       // FileUpload / DrsObject identifier
	KeyAccession    = "accession"     // IFRS accession string
	KeyBoxID        = "box_id"       // FileUploadBox identifier
	KeyObjectID     = "object_id"     // Permanent-bucket object key (UUID)
	KeySecretID     = "secret_id"     // Key store secret id
	KeyDrsID        = "drs_id"        // DRS object id served by DCS

	// ========================================================================
	// Object storage
	// ========================================================================
	KeyStorageAlias = "storage_alias" // Storage alias (bucket/endpoint/credentials group)
	KeyBucket       = "bucket"        // Resolved bucket name
	KeyUploadID     = "upload_id"     // S3 multipart upload id
	KeyPartNo       = "part_no"       // S3 multipart part number
	KeySize         = "size"          // Byte size
	KeyChecksum     = "checksum"      // Checksum (usually sha256)

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Machine-readable exception id
	KeyOperation  = "operation"   // Sub-operation type for complex operations
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// HTTP
	// ========================================================================
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyBytes      = "bytes"
	KeyClientIP   = "client_ip"
)

// ErrAttr returns a slog.Attr for an error; if err is nil the attr still
// carries the error key, with an empty string value.
func ErrAttr(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Fmt is a small helper for building one-off field values from a format
// string, useful when logging composite identifiers (e.g. "topic:key").
func Fmt(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
