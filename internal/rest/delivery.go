package rest

import (
	"log/slog"
	"sync"
)

// SerialQueue runs submitted tasks one at a time, in submission order, on a
// single goroutine. Submit never blocks.
type SerialQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewSerialQueue starts a queue worker.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit enqueues task. After Close, tasks run on the caller's goroutine.
func (q *SerialQueue) Submit(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		runTask(task)
		return
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.cond.Signal()
}

// Close drains pending tasks and stops the worker. It must not be called
// from a task.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	<-q.done
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		runTask(task)
	}
}

func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("delivery task panicked", "panic", r)
		}
	}()
	task()
}
