package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// RPC identity
	// ========================================================================
	KeyProgram   = "program"   // RPC program id
	KeyVersion   = "version"   // RPC program version
	KeyProcedure = "procedure" // remote procedure name or number
	KeySerial    = "serial"    // call serial number
	KeyType      = "msg_type"  // frame type: call, reply, message, stream
	KeyStatus    = "status"    // frame status: ok, error, continue

	// ========================================================================
	// Transport
	// ========================================================================
	KeyURI       = "uri"       // connection URI
	KeyTransport = "transport" // transport kind: tls, tcp, unix, ext, ssh
	KeyPeer      = "peer"      // peer address or socket path
	KeySecure    = "secure"    // whether the transport/security layer is encrypted

	// ========================================================================
	// Authentication
	// ========================================================================
	KeyAuthMech = "auth_mechanism" // negotiated SASL-style mechanism
	KeyUsername = "username"       // username supplied by the credential callback

	// ========================================================================
	// Streams
	// ========================================================================
	KeyStreamSerial = "stream_serial" // serial identifying a stream
	KeyStreamBytes  = "stream_bytes"  // bytes buffered/flushed for a stream

	// ========================================================================
	// Dispatch
	// ========================================================================
	KeyWaiters = "waiters" // size of the wait list when a dispatcher starts/stops

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric/libvirt-style error code
	KeyAttempt    = "attempt"     // retry attempt number
	KeyMaxRetries = "max_retries" // maximum retry attempts
)

// ----------------------------------------------------------------------------
// Field constructors for type safety
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Program returns a slog.Attr for the RPC program id
func Program(p uint32) slog.Attr {
	return slog.Any(KeyProgram, p)
}

// Procedure returns a slog.Attr for the procedure name or number
func Procedure(name string) slog.Attr {
	return slog.String(KeyProcedure, name)
}

// Serial returns a slog.Attr for the call serial number
func Serial(s uint32) slog.Attr {
	return slog.Any(KeySerial, s)
}

// MsgType returns a slog.Attr for the frame type
func MsgType(t string) slog.Attr {
	return slog.String(KeyType, t)
}

// Status returns a slog.Attr for frame/operation status
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// URI returns a slog.Attr for the connection URI
func URI(uri string) slog.Attr {
	return slog.String(KeyURI, uri)
}

// Transport returns a slog.Attr for the transport kind
func Transport(kind string) slog.Attr {
	return slog.String(KeyTransport, kind)
}

// Peer returns a slog.Attr for the peer address or socket path
func Peer(peer string) slog.Attr {
	return slog.String(KeyPeer, peer)
}

// Secure returns a slog.Attr for whether the channel is encrypted
func Secure(secure bool) slog.Attr {
	return slog.Bool(KeySecure, secure)
}

// AuthMech returns a slog.Attr for the negotiated authentication mechanism
func AuthMech(name string) slog.Attr {
	return slog.String(KeyAuthMech, name)
}

// Username returns a slog.Attr for a username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// StreamSerial returns a slog.Attr for the serial identifying a stream
func StreamSerial(serial uint32) slog.Attr {
	return slog.Any(KeyStreamSerial, serial)
}

// StreamBytes returns a slog.Attr for bytes buffered/flushed on a stream
func StreamBytes(n int) slog.Attr {
	return slog.Int(KeyStreamBytes, n)
}

// Waiters returns a slog.Attr for the size of the wait list
func Waiters(n int) slog.Attr {
	return slog.Int(KeyWaiters, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for the retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
