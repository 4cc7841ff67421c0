package mirror

import (
	"context"
	"sync"
)

// DefaultQueueSize is the number of frames held while the mirror is slow or
// unreachable.
const DefaultQueueSize = 1000

// Queue is a bounded FIFO of frames. When full, Push evicts the oldest
// frame so producers never block.
type Queue struct {
	mu    sync.Mutex
	items [][]byte
	head  int
	size  int

	notify chan struct{}
}

// NewQueue returns an empty queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{
		items:  make([][]byte, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends frame at the tail. It reports whether the oldest frame was
// evicted to make room.
func (q *Queue) Push(frame []byte) (evicted bool) {
	q.mu.Lock()
	if q.size == len(q.items) {
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
		q.size--
		evicted = true
	}
	q.items[(q.head+q.size)%len(q.items)] = frame
	q.size++
	q.mu.Unlock()

	q.signal()
	return evicted
}

// PushFront puts frame back at the head, ahead of everything queued. When
// the queue is full the frame is itself the oldest and is discarded;
// PushFront then reports false.
func (q *Queue) PushFront(frame []byte) bool {
	q.mu.Lock()
	if q.size == len(q.items) {
		q.mu.Unlock()
		return false
	}
	q.head = (q.head - 1 + len(q.items)) % len(q.items)
	q.items[q.head] = frame
	q.size++
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop removes the head frame without blocking.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil, false
	}
	frame := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return frame, true
}

// Wait blocks until a frame is available or ctx is done.
func (q *Queue) Wait(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if frame, ok := q.Pop(); ok {
			return frame, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.items)
}

// Items returns the queued frames, oldest first.
func (q *Queue) Items() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, q.size)
	for i := range out {
		out[i] = q.items[(q.head+i)%len(q.items)]
	}
	return out
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
