package coord

import "sync"

// EventQueue buffers events without bound and delivers them in order on its
// channel from a dedicated goroutine, so producers never block on a slow
// consumer. Backends use it to implement Subscription.
type EventQueue struct {
	out  chan Event
	done chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool
	once    sync.Once
}

// NewEventQueue creates a queue and starts its delivery goroutine.
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// Push appends ev. It reports false once the queue is closed.
func (q *EventQueue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending = append(q.pending, ev)
	q.cond.Signal()
	return true
}

func (q *EventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		ev := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// Events returns the delivery channel. It is closed after Close.
func (q *EventQueue) Events() <-chan Event {
	return q.out
}

// Close stops delivery and discards pending events. It is idempotent.
func (q *EventQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.pending = nil
		q.cond.Broadcast()
		q.mu.Unlock()
		close(q.done)
	})
}
