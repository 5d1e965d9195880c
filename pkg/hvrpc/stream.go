package hvrpc

import (
	"context"
	"errors"
	"time"

	"github.com/kridian/hvrpc/internal/telemetry"
	"github.com/kridian/hvrpc/internal/wire"
)

// ErrStreamFinished is returned by Send/Recv once a Stream has reached a
// terminal state (finished normally, aborted, or failed).
var ErrStreamFinished = errors.New("hvrpc: stream finished")

// Stream multiplexes a sequence of STREAM frames over a Connection,
// sharing its serial space and wait list. All fields are accessed only
// with Connection.mu held; a Stream never takes its own lock.
type Stream struct {
	conn *Connection

	serial    uint32
	program   uint32
	version   uint32
	procedure uint32

	buf        []byte
	finished   bool
	abortedTx  bool
	streamErr  error

	onEventCb   func(readable, writable bool)
	onEventLoop EventLoop
	onEventID   int
}

// OpenStream registers a new multiplexed stream and returns it. The first
// frame on the stream is the caller's responsibility (typically a Call
// whose reply carries a stream id, per spec.md §4.6); OpenStream only
// reserves bookkeeping state.
func (c *Connection) OpenStream(program, version, procedure uint32) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, c.closeErr
	}
	serial := c.allocSerialLocked()
	st := &Stream{conn: c, serial: serial, program: program, version: version, procedure: procedure}
	c.streams[serial] = st
	if c.metrics != nil {
		c.metrics.StreamOpened()
	}
	return st, nil
}

// Send transmits one STREAM/CONTINUE packet. It is fire-and-forget: the
// call returns once the bytes are written, without waiting for any reply.
func (s *Stream) Send(data []byte) error {
	ctx, span := telemetry.StartStreamSpan(context.Background(), telemetry.SpanStreamSend, s.serial, telemetry.StreamBytes(len(data)))
	defer span.End()

	s.conn.mu.Lock()
	if s.finished || s.abortedTx {
		s.conn.mu.Unlock()
		return ErrStreamFinished
	}
	frame, err := wire.EncodeStream(s.program, s.version, s.procedure, s.serial, wire.StatusContinue, data)
	s.conn.mu.Unlock()
	if err != nil {
		return &ProtocolError{Reason: err.Error()}
	}
	err = s.conn.send(frame)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Finish sends the terminating STREAM/OK packet, signalling a clean
// end-of-data to the peer.
func (s *Stream) Finish() error {
	ctx, span := telemetry.StartStreamSpan(context.Background(), telemetry.SpanStreamFinish, s.serial)
	defer span.End()

	s.conn.mu.Lock()
	if s.finished || s.abortedTx {
		s.conn.mu.Unlock()
		return ErrStreamFinished
	}
	s.abortedTx = true
	frame, err := wire.EncodeStream(s.program, s.version, s.procedure, s.serial, wire.StatusOK, nil)
	s.conn.mu.Unlock()
	if err != nil {
		return &ProtocolError{Reason: err.Error()}
	}
	err = s.conn.send(frame)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Abort sends a terminating STREAM/ERROR packet, telling the peer this
// side is giving up rather than completing normally.
func (s *Stream) Abort() error {
	ctx, span := telemetry.StartStreamSpan(context.Background(), telemetry.SpanStreamAbort, s.serial)
	defer span.End()

	s.conn.mu.Lock()
	if s.finished || s.abortedTx {
		s.conn.mu.Unlock()
		return ErrStreamFinished
	}
	s.abortedTx = true
	frame, err := wire.EncodeStream(s.program, s.version, s.procedure, s.serial, wire.StatusError, nil)
	s.conn.mu.Unlock()
	if err != nil {
		return &ProtocolError{Reason: err.Error()}
	}
	err = s.conn.send(frame)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Recv copies buffered incoming data into buf, blocking via the shared
// dispatch loop until at least one byte is available, the stream
// finishes, or it errors. It returns (0, io.EOF)-shaped completion as
// (0, nil) with ok=false once drained and finished; callers loop on ok.
func (s *Stream) Recv(buf []byte) (n int, ok bool, err error) {
	ctx, span := telemetry.StartStreamSpan(context.Background(), telemetry.SpanStreamRecv, s.serial)
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if len(s.buf) == 0 && !s.finished && s.streamErr == nil {
		slot := &callSlot{state: stateWaitRx, predicate: s.recvReadyLocked}
		s.conn.waitlist.pushTail(slot)
		s.conn.runUntilComplete(slot)
		s.conn.waitlist.remove(slot)
	}

	if s.streamErr != nil {
		return 0, false, s.streamErr
	}
	if len(s.buf) == 0 && s.finished {
		return 0, false, nil
	}

	n = copy(buf, s.buf)
	s.buf = s.buf[n:]
	return n, true, nil
}

// recvReadyLocked is the predicate a Recv waiter rides the wait list with:
// true once there is data to copy, the stream has finished, or it failed.
func (s *Stream) recvReadyLocked() bool {
	return len(s.buf) > 0 || s.finished || s.streamErr != nil
}

// OnEvent registers a callback invoked shortly after the stream becomes
// readable (data buffered or finished) or writable (always true for a
// STREAM connection once opened), polled at the given interval via the
// Connection's EventLoop. A zero interval uses a 50ms default. Only one
// callback may be registered at a time; a new call replaces the previous
// registration.
func (s *Stream) OnEvent(interval time.Duration, cb func(readable, writable bool)) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.onEventLoop == nil {
		s.onEventLoop = s.conn.events.loop
	}
	if s.onEventID != 0 && s.onEventLoop != nil {
		_ = s.onEventLoop.RemoveTimeout(s.onEventID)
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	s.onEventCb = cb
	if s.onEventLoop == nil {
		return &ResourceError{Reason: "no event loop available for stream callback"}
	}
	var tick func()
	tick = func() {
		s.conn.mu.Lock()
		readable := len(s.buf) > 0 || s.finished || s.streamErr != nil
		cb := s.onEventCb
		done := s.finished || s.streamErr != nil
		s.conn.mu.Unlock()
		if cb != nil {
			cb(readable, true)
		}
		if done {
			return
		}
		s.conn.mu.Lock()
		loop := s.onEventLoop
		s.conn.mu.Unlock()
		if loop != nil {
			_, _ = loop.AddTimeout(interval, tick)
		}
	}
	handle, err := s.onEventLoop.AddTimeout(interval, tick)
	if err != nil {
		return &ResourceError{Reason: err.Error()}
	}
	s.onEventID = handle
	return nil
}

// Close releases the stream's bookkeeping in its Connection. It does not
// send anything; call Finish or Abort first if the peer needs to be told.
func (s *Stream) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	delete(s.conn.streams, s.serial)
	if s.conn.metrics != nil {
		s.conn.metrics.StreamClosed(len(s.buf))
	}
	if s.onEventID != 0 && s.onEventLoop != nil {
		_ = s.onEventLoop.RemoveTimeout(s.onEventID)
	}
	return nil
}
