package hvrpc

import (
	"sync"
	"time"
)

// Event is a server-pushed MESSAGE frame, decoded by procedure id and
// handed to registered callbacks outside the Connection's I/O lock.
type Event struct {
	Program   uint32
	Version   uint32
	Procedure uint32
	Payload   []byte
}

// EventCallback receives events as they are flushed from the queue.
type EventCallback func(Event)

// EventLoop is the small handle-registration interface the dispatcher
// accepts from its caller to schedule the queue's flush timer — the Go
// analogue of spec.md §1's "event loop/timer primitives...only consumed
// through a small handle-registration interface". A default
// implementation (goEventLoop) is supplied so the module works standalone.
type EventLoop interface {
	AddTimeout(d time.Duration, cb func()) (handle int, err error)
	RemoveTimeout(handle int) error
}

// EventQueue decouples event delivery from the dispatch loop: the
// dispatcher only enqueues (enqueue is called with the Connection lock
// held); a one-shot timer invokes flush, which pops events, releases the
// lock implicitly (flush is never called under the Connection's mutex),
// and invokes callbacks. This guarantees callbacks never run while the
// I/O lock is held, so a callback issuing another RPC cannot deadlock.
type EventQueue struct {
	mu        sync.Mutex
	pending   []Event
	callback  EventCallback
	loop      EventLoop
	timeout   int
	scheduled bool
	metrics   eventMetrics
}

// eventMetrics is the narrow slice of internal/metrics.Registry this
// queue needs, expressed as an interface so tests don't need a real
// Prometheus registry.
type eventMetrics interface {
	EventQueued()
	EventDropped()
}

func newEventQueue(loop EventLoop, cb EventCallback, m eventMetrics) *EventQueue {
	return &EventQueue{loop: loop, callback: cb, metrics: m}
}

// enqueue is called by the dispatcher with the Connection lock held. It
// never blocks and never invokes the callback directly.
func (q *EventQueue) enqueue(ev Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	needSchedule := !q.scheduled
	q.scheduled = true
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.EventQueued()
	}

	if needSchedule && q.loop != nil {
		handle, err := q.loop.AddTimeout(0, q.flush)
		if err != nil {
			q.mu.Lock()
			q.scheduled = false
			q.mu.Unlock()
			return
		}
		q.timeout = handle
	}
}

// flush pops all pending events and invokes the callback for each,
// outside any Connection lock.
func (q *EventQueue) flush() {
	q.mu.Lock()
	events := q.pending
	q.pending = nil
	q.scheduled = false
	cb := q.callback
	q.mu.Unlock()

	if cb == nil {
		if q.metrics != nil {
			for range events {
				q.metrics.EventDropped()
			}
		}
		return
	}
	for _, ev := range events {
		cb(ev)
	}
}

// goEventLoop is the dependency-free default EventLoop: one goroutine per
// scheduled timeout, using time.AfterFunc.
type goEventLoop struct {
	mu      sync.Mutex
	timers  map[int]*time.Timer
	nextID  int
}

// NewGoEventLoop returns the default EventLoop implementation, suitable
// when the caller has no larger event-loop multiplexer of its own to
// supply.
func NewGoEventLoop() EventLoop {
	return &goEventLoop{timers: make(map[int]*time.Timer)}
}

func (l *goEventLoop) AddTimeout(d time.Duration, cb func()) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.timers[id] = time.AfterFunc(d, cb)
	return id, nil
}

func (l *goEventLoop) RemoveTimeout(handle int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[handle]; ok {
		t.Stop()
		delete(l.timers, handle)
	}
	return nil
}
