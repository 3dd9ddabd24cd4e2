// Package taskqueue runs posted closures (the engine posts its observer
// notifications) on a background goroutine, the preemptable
// section spec.md §5 permits outside the engine's critical path. It
// mirrors the teacher's worker.Run channel-and-waitgroup shape but for a
// generic closure queue instead of a fixed set of named operations.
package taskqueue

import (
	"sync"

	"github.com/google/uuid"
)

// EventHandler receives progress messages from queued tasks, the same
// decoupled logging seam the engine uses everywhere else.
type EventHandler func(v string, args ...any)

// Task is a unit of background work, identified for cancellation or
// tracing purposes.
type Task struct {
	ID uuid.UUID
	Fn func()
}

// Queue is a single-worker FIFO background task runner.
type Queue struct {
	wg        sync.WaitGroup
	tasks     chan Task
	shut      chan struct{}
	evHandler EventHandler
}

// New starts the worker goroutine and returns a Queue ready to accept
// tasks. capacity bounds how many tasks may be buffered before Post
// blocks.
func New(capacity int, evHandler EventHandler) *Queue {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}
	q := &Queue{
		tasks:     make(chan Task, capacity),
		shut:      make(chan struct{}),
		evHandler: evHandler,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case t := <-q.tasks:
			q.evHandler("taskqueue: running task %s", t.ID)
			t.Fn()
		case <-q.shut:
			return
		}
	}
}

// Post enqueues fn to run on the background goroutine and returns the
// id assigned to it.
func (q *Queue) Post(fn func()) uuid.UUID {
	id := uuid.New()
	q.tasks <- Task{ID: id, Fn: fn}
	return id
}

// Shutdown drains no further tasks; pending ones in the channel buffer
// are dropped once the worker observes the shut signal.
func (q *Queue) Shutdown() {
	q.evHandler("taskqueue: shutdown: started")
	close(q.shut)
	q.wg.Wait()
	q.evHandler("taskqueue: shutdown: completed")
}
