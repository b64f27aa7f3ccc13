package capture

import (
	"context"
	"io"
	"sync"

	"github.com/petems/consult-recorder/internal/audio"
)

// FrameQueue is an unbounded FIFO of frames for live consumers. Push never
// blocks, so the producer is not held up by a slow reader.
type FrameQueue struct {
	mu     sync.Mutex
	items  []audio.Frame
	closed bool

	ready chan struct{} // cap 1, coalesced wakeup
	done  chan struct{}
}

func newFrameQueue() *FrameQueue {
	return &FrameQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *FrameQueue) push(f audio.Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.signal()
}

func (q *FrameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// close marks end of stream. Frames already queued are still delivered.
func (q *FrameQueue) close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Next blocks until a frame is available or the stream has ended. It returns
// io.EOF once the session has stopped and every queued frame was consumed,
// or ctx.Err() if ctx is cancelled first.
func (q *FrameQueue) Next(ctx context.Context) (audio.Frame, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Wake any other waiting consumer.
				q.signal()
			}
			return f, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Len returns the number of frames waiting to be consumed.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
