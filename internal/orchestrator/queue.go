package orchestrator

import (
	"context"
	"sync"
)

// #region queue

// taskQueue is an unbounded FIFO of task ids. Submissions never block; workers
// wait on signal when it is empty.
type taskQueue struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{signal: make(chan struct{}, 1)}
}

func (q *taskQueue) push(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.notify()
}

func (q *taskQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an id is available or ctx is done.
func (q *taskQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return id, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return "", false
		}
	}
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain removes and returns everything still queued.
func (q *taskQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// #endregion
