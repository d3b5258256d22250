package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request/event-scoped logging context, threaded through a
// single inbound call (REST handler or Kafka consumer) so every log line it
// produces carries the same correlation fields.
type LogContext struct {
	TraceID       string    // OpenTelemetry trace ID
	SpanID        string    // OpenTelemetry span ID
	RequestID     string    // HTTP request id, or Kafka message offset-derived id
	CorrelationID string    // Event correlation id (idempotence key component)
	FileID        string    // FileUpload / DrsObject id, when known
	Accession     string    // IFRS accession, when known
	BoxID         string    // FileUploadBox id, when known
	ClientIP      string    // Client IP address (without port), for REST calls
	StartTime     time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithFileID returns a copy with the file id set
func (lc *LogContext) WithFileID(fileID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.FileID = fileID
	}
	return clone
}

// WithAccession returns a copy with the accession set
func (lc *LogContext) WithAccession(accession string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Accession = accession
	}
	return clone
}

// WithCorrelation returns a copy with the correlation id set
func (lc *LogContext) WithCorrelation(correlationID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.CorrelationID = correlationID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
