// Package tracing carries per-request identity and the OpenTelemetry
// lifecycle. Request IDs are generated here and surfaced to API callers in
// error responses; trace and span IDs always come from the active span.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	startTimeKey
)

// RequestInfo is the identity snapshot logged and echoed on API responses.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns a fresh request ID. Falls back to a timestamp
// ID if the system entropy source fails.
func GenerateRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(buf[:])
}

// WithRequestID attaches a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithStartTime attaches the request start time to the context.
func WithStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, start)
}

// GetStartTime returns the request start time, or the zero time.
func GetStartTime(ctx context.Context) time.Time {
	start, _ := ctx.Value(startTimeKey).(time.Time)
	return start
}

// Duration reports how long the request has been running.
func Duration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// GetRequestInfo assembles the request's identity from the context and the
// active span, if any.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	info := &RequestInfo{
		RequestID: GetRequestID(ctx),
		StartTime: GetStartTime(ctx),
	}
	sc := oteltrace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		info.TraceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		info.SpanID = sc.SpanID().String()
	}
	return info
}
