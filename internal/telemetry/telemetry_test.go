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
	assert.Equal(t, "hvrpc", cfg.ServiceName)
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
		SetAttributes(ctx, Peer("192.168.1.1:16514"))
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
	t.Run("URI", func(t *testing.T) {
		attr := URI("qemu+tls://host/system")
		assert.Equal(t, AttrURI, string(attr.Key))
		assert.Equal(t, "qemu+tls://host/system", attr.Value.AsString())
	})

	t.Run("Transport", func(t *testing.T) {
		attr := Transport("tls")
		assert.Equal(t, AttrTransport, string(attr.Key))
		assert.Equal(t, "tls", attr.Value.AsString())
	})

	t.Run("Peer", func(t *testing.T) {
		attr := Peer("192.168.1.100:16514")
		assert.Equal(t, AttrPeer, string(attr.Key))
		assert.Equal(t, "192.168.1.100:16514", attr.Value.AsString())
	})

	t.Run("Secure", func(t *testing.T) {
		attr := Secure(true)
		assert.Equal(t, AttrSecure, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("Program", func(t *testing.T) {
		attr := Program(0x20008086)
		assert.Equal(t, AttrProgram, string(attr.Key))
		assert.Equal(t, int64(0x20008086), attr.Value.AsInt64())
	})

	t.Run("Procedure", func(t *testing.T) {
		attr := Procedure("GetVersion")
		assert.Equal(t, AttrProcedure, string(attr.Key))
		assert.Equal(t, "GetVersion", attr.Value.AsString())
	})

	t.Run("Serial", func(t *testing.T) {
		attr := Serial(42)
		assert.Equal(t, AttrSerial, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("MsgType", func(t *testing.T) {
		attr := MsgType("call")
		assert.Equal(t, AttrMsgType, string(attr.Key))
		assert.Equal(t, "call", attr.Value.AsString())
	})

	t.Run("Status", func(t *testing.T) {
		attr := Status("ok")
		assert.Equal(t, AttrStatus, string(attr.Key))
		assert.Equal(t, "ok", attr.Value.AsString())
	})

	t.Run("AuthMech", func(t *testing.T) {
		attr := AuthMech("gssapi")
		assert.Equal(t, AttrAuthMech, string(attr.Key))
		assert.Equal(t, "gssapi", attr.Value.AsString())
	})

	t.Run("Username", func(t *testing.T) {
		attr := Username("alice")
		assert.Equal(t, AttrUsername, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("StreamSerial", func(t *testing.T) {
		attr := StreamSerial(7)
		assert.Equal(t, AttrStreamSerial, string(attr.Key))
		assert.Equal(t, int64(7), attr.Value.AsInt64())
	})

	t.Run("StreamBytes", func(t *testing.T) {
		attr := StreamBytes(4096)
		assert.Equal(t, AttrStreamBytes, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("Waiters", func(t *testing.T) {
		attr := Waiters(3)
		assert.Equal(t, AttrWaiters, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("ErrorCode", func(t *testing.T) {
		attr := ErrorCode(41) // VIR_ERR_NO_SUPPORT-style code
		assert.Equal(t, AttrErrorCode, string(attr.Key))
		assert.Equal(t, int64(41), attr.Value.AsInt64())
	})
}

func TestStartCallSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartCallSpan(ctx, "GetVersion", 0x20008086, 1)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartCallSpan(ctx, "ListDomains", 0x20008086, 2, Status("ok"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartStreamSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStreamSpan(ctx, SpanStreamOpen, 9)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartStreamSpan(ctx, SpanStreamRecv, 9, StreamBytes(1024))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartAuthSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartAuthSpan(ctx, SpanAuthInit, "gssapi")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartConnectionSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartConnectionSpan(ctx, SpanConnectionOpen, "qemu+tls://host/system")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartConnectionSpan(ctx, SpanConnectionClose, "qemu+tls://host/system", Secure(true))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
