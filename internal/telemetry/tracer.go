package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for spans raised across UCS, FIS, IFRS and DCS.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// HTTP / REST attributes
	// ========================================================================
	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.status_code"
	AttrClientIP   = "client.ip"

	// ========================================================================
	// File lifecycle attributes
	// ========================================================================
	AttrFileID       = "file.id"
	AttrAccession    = "file.accession"
	AttrBoxID        = "box.id"
	AttrObjectID     = "storage.object_id"
	AttrSecretID     = "keystore.secret_id"
	AttrDrsID        = "drs.object_id"
	AttrStorageAlias = "storage.alias"
	AttrBucket       = "storage.bucket"
	AttrUploadID     = "storage.upload_id"
	AttrPartNo       = "storage.part_no"
	AttrSize         = "file.size"

	// ========================================================================
	// Event bus attributes
	// ========================================================================
	AttrEventTopic     = "event.topic"
	AttrEventType      = "event.type"
	AttrEventKey       = "event.key"
	AttrCorrelationID  = "event.correlation_id"

	// ========================================================================
	// Key store / auth attributes
	// ========================================================================
	AttrTokenType = "auth.token_type"
)

// Span names for operations across the pipeline.
// Format: <component>.<operation>.
const (
	SpanUCSInitiateUpload   = "ucs.initiate_file_upload"
	SpanUCSCompleteUpload   = "ucs.complete_file_upload"
	SpanUCSLockBox          = "ucs.lock_box"
	SpanUCSPartUploadURL    = "ucs.get_part_upload_url"
	SpanUCSRemoveUpload     = "ucs.remove_file_upload"

	SpanFISDecryptEnvelope  = "fis.decrypt_envelope"
	SpanFISDepositKey       = "fis.deposit_key"
	SpanFISInterrogation    = "fis.interrogation_report"

	SpanIFRSRegisterFile    = "ifrs.register_file"
	SpanIFRSStageFile       = "ifrs.stage_registered_file"
	SpanIFRSDeleteFile      = "ifrs.delete_file"

	SpanDCSAccessObject     = "dcs.access_drs_object"
	SpanDCSServeEnvelope    = "dcs.serve_envelope"
	SpanDCSCleanupOutbox    = "dcs.cleanup_outbox"

	SpanStorageCopy            = "objectstorage.copy_object"
	SpanStorageInitMultipart   = "objectstorage.init_multipart"
	SpanStorageCompleteUpload  = "objectstorage.complete_multipart"
	SpanStoragePresign         = "objectstorage.presign"

	SpanEventPublish  = "eventbus.publish"
	SpanEventConsume  = "eventbus.consume"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// FileID returns an attribute for a FileUpload/DrsObject id.
func FileID(id string) attribute.KeyValue {
	return attribute.String(AttrFileID, id)
}

// Accession returns an attribute for an IFRS accession.
func Accession(accession string) attribute.KeyValue {
	return attribute.String(AttrAccession, accession)
}

// BoxID returns an attribute for a FileUploadBox id.
func BoxID(id string) attribute.KeyValue {
	return attribute.String(AttrBoxID, id)
}

// ObjectID returns an attribute for a permanent-bucket object key.
func ObjectID(id string) attribute.KeyValue {
	return attribute.String(AttrObjectID, id)
}

// StorageAlias returns an attribute for a configured storage alias.
func StorageAlias(alias string) attribute.KeyValue {
	return attribute.String(AttrStorageAlias, alias)
}

// Bucket returns an attribute for an S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// UploadID returns an attribute for an S3 multipart upload id.
func UploadID(id string) attribute.KeyValue {
	return attribute.String(AttrUploadID, id)
}

// Size returns an attribute for a byte size.
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// EventTopic returns an attribute for a Kafka topic.
func EventTopic(topic string) attribute.KeyValue {
	return attribute.String(AttrEventTopic, topic)
}

// EventType returns an attribute for an event schema/type name.
func EventType(eventType string) attribute.KeyValue {
	return attribute.String(AttrEventType, eventType)
}

// EventKey returns an attribute for a Kafka message key.
func EventKey(key string) attribute.KeyValue {
	return attribute.String(AttrEventKey, key)
}

// CorrelationID returns an attribute for an event correlation id.
func CorrelationID(id string) attribute.KeyValue {
	return attribute.String(AttrCorrelationID, id)
}

// StartEventPublishSpan starts a span around a single outbox publish attempt.
func StartEventPublishSpan(ctx context.Context, topic, key, eventType string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanEventPublish, trace.WithAttributes(
		EventTopic(topic), EventKey(key), EventType(eventType),
	))
}

// StartEventConsumeSpan starts a span around a single inbound event handler call.
func StartEventConsumeSpan(ctx context.Context, topic, eventType, correlationID string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanEventConsume, trace.WithAttributes(
		EventTopic(topic), EventType(eventType), CorrelationID(correlationID),
	))
}

// StartStorageSpan starts a span for an object storage operation.
func StartStorageSpan(ctx context.Context, spanName, alias, bucket string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{StorageAlias(alias), Bucket(bucket)}, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}
