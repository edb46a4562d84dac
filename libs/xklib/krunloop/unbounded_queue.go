package krunloop

import (
	"sync"
)

// UnboundedQueue is a FIFO whose Enqueue never blocks. Dequeue side is a channel.
type UnboundedQueue[T CriticalResource] struct {
	mu     sync.Mutex
	buffer []IEvent[T]
	notify chan struct{}
	closed bool
}

func NewUnboundedQueue[T CriticalResource]() *UnboundedQueue[T] {
	return &UnboundedQueue[T]{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue drops the event silently once the queue is closed.
func (q *UnboundedQueue[T]) Enqueue(item IEvent[T]) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buffer = append(q.buffer, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue returns false when empty.
func (q *UnboundedQueue[T]) TryDequeue() (IEvent[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buffer) == 0 {
		return nil, false
	}
	item := q.buffer[0]
	q.buffer[0] = nil
	q.buffer = q.buffer[1:]
	return item, true
}

// Notify fires at least once after each Enqueue.
func (q *UnboundedQueue[T]) Notify() <-chan struct{} {
	return q.notify
}

func (q *UnboundedQueue[T]) GetSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

func (q *UnboundedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buffer = nil
}
