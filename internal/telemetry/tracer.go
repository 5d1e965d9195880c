package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for RPC operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Connection attributes
	// ========================================================================
	AttrURI       = "hvrpc.uri"
	AttrTransport = "hvrpc.transport" // tls, tcp, unix, ext, ssh
	AttrPeer      = "hvrpc.peer"
	AttrSecure    = "hvrpc.secure"

	// ========================================================================
	// Call attributes
	// ========================================================================
	AttrProgram   = "hvrpc.program"
	AttrVersion   = "hvrpc.version"
	AttrProcedure = "hvrpc.procedure"
	AttrSerial    = "hvrpc.serial"
	AttrMsgType   = "hvrpc.msg_type" // call, reply, message, stream
	AttrStatus    = "hvrpc.status"   // ok, error, continue

	// ========================================================================
	// Authentication attributes
	// ========================================================================
	AttrAuthMech = "hvrpc.auth_mechanism"
	AttrUsername = "hvrpc.username"

	// ========================================================================
	// Stream attributes
	// ========================================================================
	AttrStreamSerial = "hvrpc.stream_serial"
	AttrStreamBytes  = "hvrpc.stream_bytes"

	// ========================================================================
	// Dispatch attributes
	// ========================================================================
	AttrWaiters = "hvrpc.waiters"

	// ========================================================================
	// Error attributes
	// ========================================================================
	AttrErrorCode = "hvrpc.error_code"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for a single RPC call
	SpanCall = "hvrpc.call"

	// Connection lifecycle spans
	SpanConnectionOpen  = "hvrpc.connection.open"
	SpanConnectionClose = "hvrpc.connection.close"

	// Authentication handshake spans
	SpanAuthList = "hvrpc.auth.list"
	SpanAuthInit = "hvrpc.auth.init"
	SpanAuthStep = "hvrpc.auth.step"

	// Dispatcher spans
	SpanDispatchIteration = "hvrpc.dispatch.iteration"
	SpanDispatchWait      = "hvrpc.dispatch.wait"

	// Stream spans
	SpanStreamOpen   = "hvrpc.stream.open"
	SpanStreamSend   = "hvrpc.stream.send"
	SpanStreamRecv   = "hvrpc.stream.recv"
	SpanStreamAbort  = "hvrpc.stream.abort"
	SpanStreamFinish = "hvrpc.stream.finish"

	// Event delivery span
	SpanEventDispatch = "hvrpc.event.dispatch"
)

// URI returns an attribute for the connection URI
func URI(uri string) attribute.KeyValue {
	return attribute.String(AttrURI, uri)
}

// Transport returns an attribute for the transport kind
func Transport(kind string) attribute.KeyValue {
	return attribute.String(AttrTransport, kind)
}

// Peer returns an attribute for the peer address or socket path
func Peer(peer string) attribute.KeyValue {
	return attribute.String(AttrPeer, peer)
}

// Secure returns an attribute for whether the channel is encrypted
func Secure(secure bool) attribute.KeyValue {
	return attribute.Bool(AttrSecure, secure)
}

// Program returns an attribute for the RPC program id
func Program(program uint32) attribute.KeyValue {
	return attribute.Int64(AttrProgram, int64(program))
}

// Procedure returns an attribute for the procedure name
func Procedure(name string) attribute.KeyValue {
	return attribute.String(AttrProcedure, name)
}

// Serial returns an attribute for the call serial number
func Serial(serial uint32) attribute.KeyValue {
	return attribute.Int64(AttrSerial, int64(serial))
}

// MsgType returns an attribute for the frame type
func MsgType(t string) attribute.KeyValue {
	return attribute.String(AttrMsgType, t)
}

// Status returns an attribute for frame/operation status
func Status(s string) attribute.KeyValue {
	return attribute.String(AttrStatus, s)
}

// AuthMech returns an attribute for the negotiated authentication mechanism
func AuthMech(name string) attribute.KeyValue {
	return attribute.String(AttrAuthMech, name)
}

// Username returns an attribute for the authenticating username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// StreamSerial returns an attribute for the serial identifying a stream
func StreamSerial(serial uint32) attribute.KeyValue {
	return attribute.Int64(AttrStreamSerial, int64(serial))
}

// StreamBytes returns an attribute for bytes buffered/flushed on a stream
func StreamBytes(n int) attribute.KeyValue {
	return attribute.Int(AttrStreamBytes, n)
}

// Waiters returns an attribute for the size of the dispatcher wait list
func Waiters(n int) attribute.KeyValue {
	return attribute.Int(AttrWaiters, n)
}

// ErrorCode returns an attribute for a numeric/libvirt-style error code
func ErrorCode(code int) attribute.KeyValue {
	return attribute.Int(AttrErrorCode, code)
}

// StartCallSpan starts a span for a single RPC call.
func StartCallSpan(ctx context.Context, procedure string, program uint32, serial uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Procedure(procedure),
		Program(program),
		Serial(serial),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanCall, trace.WithAttributes(allAttrs...))
}

// StartStreamSpan starts a span for a stream operation.
func StartStreamSpan(ctx context.Context, name string, streamSerial uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		StreamSerial(streamSerial),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartAuthSpan starts a span for an authentication handshake step.
func StartAuthSpan(ctx context.Context, name string, mechanism string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		AuthMech(mechanism),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartConnectionSpan starts a span for connection establishment or teardown.
func StartConnectionSpan(ctx context.Context, name string, uri string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		URI(uri),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
