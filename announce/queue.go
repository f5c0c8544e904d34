// Package announce carries live-stream notifications from the webhook
// receiver to the Discord delivery loop. The queue is the only hand-off point
// between the HTTP serving goroutines and the dispatcher goroutine.
package announce

import (
	"context"
	"sync"

	"github.com/quietterminalinteractive/teacupbot/telemetry"
)

// Task is one pending announcement: deliver the "went live" notice for Login
// to the guild's configured ping channel. Tasks are ephemeral and never
// persisted; a restart drops whatever is queued.
type Task struct {
	Login   string
	Title   string
	GuildID string
}

// Queue is an unbounded FIFO safe for concurrent producers and a single
// consumer. Enqueue never blocks; Dequeue blocks until an item arrives or the
// context is cancelled.
type Queue struct {
	mu     sync.Mutex
	items  []Task
	signal chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue appends a task and wakes the consumer.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	depth := len(q.items)
	q.mu.Unlock()

	telemetry.SetQueueDepth(depth)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest task, blocking while the queue is
// empty. It returns ctx.Err() once the context is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			telemetry.SetQueueDepth(depth)
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
