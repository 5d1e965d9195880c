// Package hvrpc is the client-side RPC core of a remote hypervisor
// management client: URI-driven transport establishment, an
// authentication handshake, length-framed message encoding, a single
// multi-thread "passing the buck" dispatch loop, multiplexed data
// streams, and asynchronous server-pushed events.
package hvrpc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kridian/hvrpc/internal/metrics"
	"github.com/kridian/hvrpc/internal/security"
	"github.com/kridian/hvrpc/internal/telemetry"
	"github.com/kridian/hvrpc/internal/transport"
	"github.com/kridian/hvrpc/internal/wire"
)

// Connection is one established, authenticated link to a remote daemon.
// A single mutex guards every piece of mutable state: the wait list, the
// call and stream registries, and the transport itself. There is no
// dedicated I/O goroutine; whichever caller is at the head of the wait
// list performs I/O on behalf of everyone.
type Connection struct {
	mu   sync.Mutex
	cond *sync.Cond

	transport transport.Transport // used directly for SetReadDeadline-based wakeup
	rw        io.ReadWriter       // transport, or transport wrapped by a SecurityLayer

	waitlist   waitList
	bySerial   map[uint32]*callSlot
	streams    map[uint32]*Stream
	nextSerial uint32

	opening bool // true until the auth handshake completes; MESSAGE frames are ignored while true

	closed   bool
	closeErr error

	wakeups int32 // atomic: outstanding wakeup requests, bounded per Invariant 5

	events          *EventQueue
	metrics         *metrics.Registry
	streamBufferCap int
}

// Option configures a Connection at construction time.
type Option func(*connConfig)

type connConfig struct {
	metrics         *metrics.Registry
	eventLoop       EventLoop
	onEvent         EventCallback
	streamBufferCap int
}

// WithMetrics attaches a metrics registry; a nil Connection default means
// no metrics are collected.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *connConfig) { c.metrics = r }
}

// WithEventLoop supplies the handle-registration interface the EventQueue
// schedules its flush timer through. Defaults to NewGoEventLoop().
func WithEventLoop(loop EventLoop) Option {
	return func(c *connConfig) { c.eventLoop = loop }
}

// WithEventCallback registers the callback invoked for every flushed
// server-pushed event.
func WithEventCallback(cb EventCallback) Option {
	return func(c *connConfig) { c.onEvent = cb }
}

// WithStreamBufferCap overrides the default hard cap on a stream's
// incoming buffer (DefaultStreamBufferCap).
func WithStreamBufferCap(n int) Option {
	return func(c *connConfig) { c.streamBufferCap = n }
}

// newConnection wraps an already-established, already-authenticated
// transport (and optional SecurityLayer) into a Connection ready for
// Call/OpenStream. It is unexported; callers go through Open/Dial in
// factory.go, which perform URI parsing and the handshake first.
func newConnection(t transport.Transport, sec security.Layer, opts ...Option) *Connection {
	cfg := connConfig{streamBufferCap: DefaultStreamBufferCap}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.eventLoop == nil {
		cfg.eventLoop = NewGoEventLoop()
	}

	var rw io.ReadWriter = t
	if sec != nil {
		rw = sec
	}

	c := &Connection{
		transport:       t,
		rw:              rw,
		bySerial:        make(map[uint32]*callSlot),
		streams:         make(map[uint32]*Stream),
		metrics:         cfg.metrics,
		streamBufferCap: cfg.streamBufferCap,
		opening:         true,
	}
	c.cond = sync.NewCond(&c.mu)
	var m eventMetrics
	if cfg.metrics != nil {
		m = cfg.metrics
	}
	c.events = newEventQueue(cfg.eventLoop, cfg.onEvent, m)
	return c
}

// DefaultStreamBufferCap bounds a stream's incoming buffer absent an
// explicit WithStreamBufferCap override (see DESIGN.md's resolution of
// spec.md §9's stream-backpressure open question).
const DefaultStreamBufferCap = 4 << 20

// finishOpening marks the handshake complete; MESSAGE frames are routed
// to the EventQueue only after this point.
func (c *Connection) finishOpening() {
	c.mu.Lock()
	c.opening = false
	c.mu.Unlock()
}

// installSecurityLayer swaps the byte-pipe the dispatcher reads/writes
// to the SecurityLayer the authentication handshake negotiated. Called
// once, after negotiateAuth and before finishOpening; a nil layer leaves
// the raw transport in place (no authentication occurred at all).
func (c *Connection) installSecurityLayer(layer security.Layer) {
	if layer == nil {
		return
	}
	c.mu.Lock()
	c.rw = layer
	c.mu.Unlock()
}

func (c *Connection) allocSerialLocked() uint32 {
	c.nextSerial++
	return c.nextSerial
}

// Call issues a synchronous RPC: one CALL frame out, one REPLY frame in.
// It blocks the calling goroutine until a reply arrives, the Connection
// fails, or the Connection is closed.
func (c *Connection) Call(ctx context.Context, program, version, procedure uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}

	serial := c.allocSerialLocked()
	frame, err := wire.EncodeRequest(program, version, procedure, serial, payload)
	if err != nil {
		c.mu.Unlock()
		return nil, &ProtocolError{Reason: err.Error()}
	}

	spanCtx, span := telemetry.StartCallSpan(ctx, callLabel(procedure), program, serial)
	defer span.End()

	slot := &callSlot{serial: serial, procedure: procedure, wantReply: true, frame: frame, state: stateWaitTx}
	c.bySerial[serial] = slot
	c.waitlist.pushTail(slot)

	if c.metrics != nil {
		c.metrics.CallStarted()
	}
	start := time.Now()

	c.runUntilComplete(slot)

	delete(c.bySerial, serial)
	reply, rerr := slot.reply, slot.err
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CallFinished(callLabel(procedure), time.Since(start))
	}
	if rerr != nil {
		telemetry.RecordError(spanCtx, rerr)
	}
	return reply, rerr
}

// send writes an already-encoded frame as a fire-and-forget slot expecting
// no reply. Stream.Send, Finish and Abort use it for their CONTINUE/OK/ERROR
// packets; it is not exported.
func (c *Connection) send(frame []byte) error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}

	slot := &callSlot{wantReply: false, frame: frame, state: stateWaitTx}
	c.waitlist.pushTail(slot)
	c.runUntilComplete(slot)
	err := slot.err
	c.mu.Unlock()
	return err
}

// Close tears down the Connection: the Transport is closed and every
// pending call/stream is failed with the given reason.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.failAllLocked(&TransportError{Op: "close", Err: io.EOF})
	return c.transport.Close()
}

func (c *Connection) failAllLocked(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err

	for s := c.waitlist.head; s != nil; {
		next := s.next
		s.state = stateError
		s.err = err
		s = next
	}
	c.waitlist = waitList{}

	for _, st := range c.streams {
		st.finished = true
		if st.streamErr == nil {
			st.streamErr = err
		}
	}

	c.cond.Broadcast()
}

func (c *Connection) interruptDispatcherLocked() {
	atomic.AddInt32(&c.wakeups, 1)
	_ = c.transport.SetReadDeadline(time.Now().Add(-time.Millisecond))
}

func callLabel(procedure uint32) string {
	return fmt.Sprintf("proc-%d", procedure)
}
