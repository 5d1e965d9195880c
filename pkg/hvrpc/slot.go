package hvrpc

// callState is the per-CallSlot state machine described by the dispatcher:
// NEW -> WAIT_TX -> WAIT_RX -> COMPLETE/ERROR, with fire-and-forget sends
// (stream CONTINUE) skipping WAIT_RX entirely.
type callState int32

const (
	stateNew callState = iota
	stateWaitTx
	stateWaitRx
	stateComplete
	stateError
)

// callSlot is one caller's registration in the wait list. It is never
// exposed outside pkg/hvrpc; callers interact with it only through
// Connection.Call and the Stream methods.
type callSlot struct {
	serial    uint32
	procedure uint32
	wantReply bool

	frame        []byte // fully encoded outbound frame
	bufferOffset int    // bytes of frame already written

	state   callState
	reply   []byte
	err     error

	// predicate, when set, lets a slot complete without ever writing to
	// the wire: checked after each dispatch iteration, and on true the
	// slot transitions straight to COMPLETE. Used by Stream.Recv to ride
	// the same wait list and dispatch loop as ordinary calls.
	predicate func() bool

	prev, next *callSlot // doubly-linked wait list node
}

// waitList is the Connection's doubly-linked FIFO of contending callSlots,
// per spec.md §9's design note preferring O(1) unlink over a singly-linked
// list.
type waitList struct {
	head, tail *callSlot
}

func (w *waitList) empty() bool { return w.head == nil }

func (w *waitList) pushTail(s *callSlot) {
	s.prev, s.next = w.tail, nil
	if w.tail != nil {
		w.tail.next = s
	} else {
		w.head = s
	}
	w.tail = s
}

func (w *waitList) remove(s *callSlot) {
	if s.prev != nil {
		s.prev.next = s.next
	} else if w.head == s {
		w.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else if w.tail == s {
		w.tail = s.prev
	}
	s.prev, s.next = nil, nil
}
