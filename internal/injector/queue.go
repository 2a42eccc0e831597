package injector

import "sync"

// eventQueue decouples the worker from the consumer. push never blocks; a
// pending progress event is replaced by a newer one so a slow consumer sees
// fewer but still increasing updates. The output channel is closed after
// the queue is closed and drained.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if n := len(q.items); ev.Type == EventProgress && n > 0 && q.items[n-1].Type == EventProgress {
		q.items[n-1] = ev
	} else {
		q.items = append(q.items, ev)
	}
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				close(q.out)
				return
			}
			<-q.signal
			continue
		}
		ev := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.out <- ev
	}
}
