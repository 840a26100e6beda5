package chat

import (
	"sync"
	"sync/atomic"
)

type EventKind uint8

const (
	EventMessage EventKind = iota + 1
	// EventJoined is delivered once the channel join is confirmed.
	EventJoined
	// EventFailed is terminal: no further events follow it.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "MESSAGE"
	case EventJoined:
		return "JOINED"
	case EventFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

type Event struct {
	Kind   EventKind
	Sender string
	Text   string
	Err    error
}

// Queue is the hand-off between a chat listener goroutine and the simulation.
// Producers never block: Push drops when the buffer is full. The single
// consumer drains it once per tick with Drain.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64

	failMu    sync.Mutex
	failErr   error
	failed    bool
	delivered bool
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// Push enqueues ev without blocking and reports whether it was accepted.
func (q *Queue) Push(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Fail records a terminal failure. Only the first call has an effect; the
// failure is handed to the consumer after any messages already queued.
func (q *Queue) Fail(err error) {
	q.failMu.Lock()
	defer q.failMu.Unlock()
	if q.failed {
		return
	}
	q.failed = true
	q.failErr = err
}

// Drain appends every event queued before the call to buf and returns it.
// It never waits: events pushed while draining are left for the next call.
func (q *Queue) Drain(buf []Event) []Event {
	n := len(q.ch)
drain:
	for i := 0; i < n; i++ {
		select {
		case ev := <-q.ch:
			buf = append(buf, ev)
		default:
			break drain
		}
	}
	q.failMu.Lock()
	if q.failed && !q.delivered && len(q.ch) == 0 {
		q.delivered = true
		buf = append(buf, Event{Kind: EventFailed, Err: q.failErr})
	}
	q.failMu.Unlock()
	return buf
}

// Dropped reports how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }
