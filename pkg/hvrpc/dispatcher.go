package hvrpc

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/kridian/hvrpc/internal/wire"
)

// runUntilComplete is the per-caller half of "passing the buck": park
// until either this slot is already the head of the wait list (in which
// case this goroutine becomes the dispatcher) or another dispatcher
// completes it first. Must be called with c.mu held; returns with c.mu
// held and self.state in {stateComplete, stateError}.
func (c *Connection) runUntilComplete(self *callSlot) {
	for self.state != stateComplete && self.state != stateError {
		if c.waitlist.head == self {
			c.dispatch(self)
			return
		}
		c.interruptDispatcherLocked()
		c.cond.Wait()
	}
}

// dispatch is the dispatcher's event loop (spec.md §4.4 step 4). It runs
// until self completes, errors, or the Connection fails fatally. Called
// and returns with c.mu held; releases it only around the blocking read.
func (c *Connection) dispatch(self *callSlot) {
	for {
		if err := c.writePendingLocked(); err != nil {
			c.failAllLocked(err)
			return
		}

		// A fire-and-forget send is complete once its last byte is
		// written; release it (and any other such sender) before blocking.
		c.reapCompletedLocked(self)
		if self.state == stateComplete {
			c.waitlist.remove(self)
			if c.waitlist.head != nil {
				c.cond.Broadcast()
			}
			return
		}

		c.mu.Unlock()
		header, payload, readErr := c.blockingReadFrame()
		c.mu.Lock()

		if readErr != nil {
			if isWakeupTimeout(readErr) {
				c.drainWakeupLocked()
			} else if errors.Is(readErr, wire.ErrFrameTooLarge) || errors.Is(readErr, wire.ErrFrameTooShort) {
				c.failAllLocked(&ProtocolError{Reason: readErr.Error()})
				return
			} else {
				c.failAllLocked(&TransportError{Op: "read", Err: readErr})
				return
			}
		} else {
			if routeErr := c.routeLocked(header, payload); routeErr != nil {
				c.failAllLocked(routeErr)
				return
			}
		}

		if self.predicate != nil && self.state != stateComplete && self.state != stateError && self.predicate() {
			self.state = stateComplete
		}
		c.reapCompletedLocked(self)

		if self.state == stateComplete || self.state == stateError {
			c.waitlist.remove(self)
			if c.waitlist.head != nil {
				c.cond.Broadcast()
			}
			return
		}
	}
}

// writePendingLocked writes every wait-list slot still in WAIT_TX, in list
// order, modeling POLLOUT over all pending senders rather than just the
// list head. This is what lets two callers have their CALL frames both on
// the wire before either reply arrives: the dispatcher drains the whole
// queue of outbound frames, and replies are later demultiplexed back to
// the right slot by serial (routeReplyLocked), independent of write order.
func (c *Connection) writePendingLocked() error {
	for s := c.waitlist.head; s != nil; s = s.next {
		if s.state != stateWaitTx {
			continue
		}
		if err := c.writeSlotLocked(s); err != nil {
			return err
		}
	}
	return nil
}

// writeSlotLocked writes one slot's remaining outbound bytes. A completed
// write transitions WAIT_TX to WAIT_RX (synchronous calls) or straight to
// COMPLETE (fire-and-forget stream sends).
func (c *Connection) writeSlotLocked(slot *callSlot) error {
	for slot.bufferOffset < len(slot.frame) {
		n, err := c.rw.Write(slot.frame[slot.bufferOffset:])
		if err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		slot.bufferOffset += n
		if c.metrics != nil {
			c.metrics.BytesSent(n)
		}
	}
	if slot.wantReply {
		slot.state = stateWaitRx
	} else {
		slot.state = stateComplete
	}
	return nil
}

// blockingReadFrame reads exactly one frame, blocking until it arrives or
// the transport's read deadline (set by interruptDispatcherLocked) fires.
func (c *Connection) blockingReadFrame() (wire.Header, []byte, error) {
	return wire.ReadFrame(c.rw)
}

func isWakeupTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// drainWakeupLocked clears the read deadline and accounts for one
// outstanding wakeup request, satisfying Invariant 5's bound on pending
// wakeups without a real file descriptor.
func (c *Connection) drainWakeupLocked() {
	_ = c.transport.SetReadDeadline(time.Time{})
	if atomic.LoadInt32(&c.wakeups) > 0 {
		atomic.AddInt32(&c.wakeups, -1)
	}
}

// reapCompletedLocked unlinks and signals every wait-list slot other than
// self that has reached COMPLETE or ERROR, checking predicate-bearing
// slots (stream recv waiters) along the way.
func (c *Connection) reapCompletedLocked(self *callSlot) {
	s := c.waitlist.head
	for s != nil {
		next := s.next
		if s != self {
			if s.predicate != nil && s.state != stateComplete && s.state != stateError && s.predicate() {
				s.state = stateComplete
			}
			if s.state == stateComplete || s.state == stateError {
				c.waitlist.remove(s)
				c.cond.Broadcast()
			}
		}
		s = next
	}
}

// routeLocked implements spec.md §4.5's inbound routing table over one
// decoded frame.
func (c *Connection) routeLocked(h wire.Header, payload []byte) error {
	switch h.Type {
	case wire.TypeReply:
		return c.routeReplyLocked(h, payload)
	case wire.TypeMessage:
		c.routeMessageLocked(h, payload)
		return nil
	case wire.TypeStream:
		return c.routeStreamLocked(h, payload)
	default:
		return &ProtocolError{Reason: "unknown frame type"}
	}
}

func (c *Connection) routeReplyLocked(h wire.Header, payload []byte) error {
	slot, ok := c.bySerial[h.Serial]
	if !ok {
		return &ProtocolError{Reason: "reply with no matching call"}
	}
	if slot.procedure != h.Procedure {
		return &ProtocolError{Reason: "reply procedure mismatch"}
	}
	switch h.Status {
	case wire.StatusOK:
		slot.reply = payload
		slot.state = stateComplete
	case wire.StatusError:
		slot.err = decodeRemoteError(h.Procedure, payload)
		slot.state = stateError
	default:
		return &ProtocolError{Reason: "unexpected status on reply frame"}
	}
	return nil
}

func (c *Connection) routeMessageLocked(h wire.Header, payload []byte) {
	if c.opening {
		return
	}
	c.events.enqueue(Event{Program: h.Program, Version: h.Version, Procedure: h.Procedure, Payload: payload})
}

func (c *Connection) routeStreamLocked(h wire.Header, payload []byte) error {
	st, ok := c.streams[h.Serial]
	if !ok {
		return &ProtocolError{Reason: "stream frame with no matching stream"}
	}
	switch h.Status {
	case wire.StatusContinue:
		if len(st.buf)+len(payload) > c.streamBufferCap {
			st.streamErr = &StreamError{Serial: h.Serial, Message: "incoming buffer full"}
			return nil
		}
		st.buf = append(st.buf, payload...)
	case wire.StatusOK:
		st.finished = true
	case wire.StatusError:
		st.streamErr = decodeStreamError(h.Serial, payload)
		st.finished = true
	default:
		return &ProtocolError{Reason: "unexpected status on stream frame"}
	}
	return nil
}

// remoteErrorRecord is the XDR shape of an ERROR-status reply payload.
type remoteErrorRecord struct {
	Code    int32
	Message string
}

func decodeRemoteError(procedure uint32, payload []byte) *RemoteError {
	var rec remoteErrorRecord
	if err := wire.UnmarshalPayload(payload, &rec); err != nil {
		return &RemoteError{Procedure: procedure, Message: string(payload)}
	}
	return &RemoteError{
		Procedure:    procedure,
		Code:         int(rec.Code),
		Message:      rec.Message,
		NotSupported: rec.Code == quietMissingRPCCode,
	}
}

func decodeStreamError(serial uint32, payload []byte) *StreamError {
	var rec remoteErrorRecord
	if err := wire.UnmarshalPayload(payload, &rec); err != nil {
		return &StreamError{Serial: serial, Message: string(payload)}
	}
	return &StreamError{Serial: serial, Code: int(rec.Code), Message: rec.Message}
}
