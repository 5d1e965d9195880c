package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one RPC call.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Procedure string    // remote procedure name (GetVersion, ListDomains, ...)
	Program   uint32    // RPC program id
	Serial    uint32    // call serial
	Peer      string    // transport peer address or socket path
	StartTime time.Time // for duration calculation
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

// NewLogContext creates a new LogContext for a call against the given peer.
func NewLogContext(peer string) *LogContext {
	return &LogContext{
		Peer:      peer,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Procedure: lc.Procedure,
		Program:   lc.Program,
		Serial:    lc.Serial,
		Peer:      lc.Peer,
		StartTime: lc.StartTime,
	}
}

// WithProcedure returns a copy with the procedure set
func (lc *LogContext) WithProcedure(procedure string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
	}
	return clone
}

// WithCall returns a copy with the program/serial identifying an in-flight call set.
func (lc *LogContext) WithCall(program, serial uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Program = program
		clone.Serial = serial
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
