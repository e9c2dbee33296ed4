package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// ErrQueueClosed is returned by Pop once the queue is closed.
var ErrQueueClosed = errors.New("frame queue closed")

// Frame is one inbound websocket message.
type Frame struct {
	Data     []byte
	Received time.Time
}

// FrameQueue is an unbounded FIFO between a connection's read loop and the
// goroutine applying frames, so a slow consumer never stalls reads and frame
// order is kept.
type FrameQueue struct {
	mu     sync.Mutex
	frames deque.Deque[Frame]
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

func NewFrameQueue() *FrameQueue {
	return &FrameQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends f. It returns false once the queue is closed.
func (q *FrameQueue) Push(f Frame) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.frames.PushBack(f)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest frame, waiting until one is available, the queue is
// closed or ctx is done.
func (q *FrameQueue) Pop(ctx context.Context) (Frame, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Frame{}, ErrQueueClosed
		}
		if q.frames.Len() > 0 {
			f := q.frames.PopFront()
			q.mu.Unlock()
			return f, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frames.Len()
}

// Close wakes waiting consumers and returns the number of frames discarded.
func (q *FrameQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	n := q.frames.Len()
	q.frames.Clear()
	close(q.done)
	return n
}
