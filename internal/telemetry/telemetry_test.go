package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "file-service", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("FileID", func(t *testing.T) {
		attr := FileID("file-123")
		assert.Equal(t, AttrFileID, string(attr.Key))
		assert.Equal(t, "file-123", attr.Value.AsString())
	})

	t.Run("Accession", func(t *testing.T) {
		attr := Accession("GHGAF00000000001")
		assert.Equal(t, AttrAccession, string(attr.Key))
		assert.Equal(t, "GHGAF00000000001", attr.Value.AsString())
	})

	t.Run("BoxID", func(t *testing.T) {
		attr := BoxID("box-abc")
		assert.Equal(t, AttrBoxID, string(attr.Key))
		assert.Equal(t, "box-abc", attr.Value.AsString())
	})

	t.Run("ObjectID", func(t *testing.T) {
		attr := ObjectID("obj-uuid")
		assert.Equal(t, AttrObjectID, string(attr.Key))
		assert.Equal(t, "obj-uuid", attr.Value.AsString())
	})

	t.Run("StorageAlias", func(t *testing.T) {
		attr := StorageAlias("inbox-01")
		assert.Equal(t, AttrStorageAlias, string(attr.Key))
		assert.Equal(t, "inbox-01", attr.Value.AsString())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("UploadID", func(t *testing.T) {
		attr := UploadID("upload-789")
		assert.Equal(t, AttrUploadID, string(attr.Key))
		assert.Equal(t, "upload-789", attr.Value.AsString())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("EventTopic", func(t *testing.T) {
		attr := EventTopic("file-uploads-received")
		assert.Equal(t, AttrEventTopic, string(attr.Key))
		assert.Equal(t, "file-uploads-received", attr.Value.AsString())
	})

	t.Run("EventType", func(t *testing.T) {
		attr := EventType("FileUploadValidationSuccess")
		assert.Equal(t, AttrEventType, string(attr.Key))
		assert.Equal(t, "FileUploadValidationSuccess", attr.Value.AsString())
	})

	t.Run("EventKey", func(t *testing.T) {
		attr := EventKey("file-123")
		assert.Equal(t, AttrEventKey, string(attr.Key))
		assert.Equal(t, "file-123", attr.Value.AsString())
	})

	t.Run("CorrelationID", func(t *testing.T) {
		attr := CorrelationID("corr-abc")
		assert.Equal(t, AttrCorrelationID, string(attr.Key))
		assert.Equal(t, "corr-abc", attr.Value.AsString())
	})
}

func TestStartEventPublishSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartEventPublishSpan(ctx, "file-uploads-received", "file-123", "FileUploadReceived")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartEventConsumeSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartEventConsumeSpan(ctx, "file-interrogations-success", "FileUploadValidationSuccess", "corr-abc")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartStorageSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStorageSpan(ctx, SpanStorageCopy, "permanent", "archive-bucket")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartStorageSpan(ctx, SpanStorageInitMultipart, "inbox-01", "staging-bucket", ObjectID("obj-uuid"), Size(2048))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
