package dispatch

import "sync"

// TaskQueue is an ordered, goroutine-safe sequence of tasks. Every batch
// passed to Append or Push is delivered contiguously and in the order given.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []Task
	closed bool
}

// NewTaskQueue creates an empty, open queue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Append adds tasks to the tail of the queue.
func (q *TaskQueue) Append(tasks ...Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, tasks...)
	q.cond.Broadcast()
	return nil
}

// Push adds tasks to the head of the queue, ahead of everything already
// queued.
func (q *TaskQueue) Push(tasks ...Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	merged := make([]Task, 0, len(tasks)+len(q.tasks))
	merged = append(merged, tasks...)
	q.tasks = append(merged, q.tasks...)
	q.cond.Broadcast()
	return nil
}

// Close rejects further Append and Push calls and enqueues final as the last
// task Next will ever return. Closing a closed queue is a no-op.
func (q *TaskQueue) Close(final Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	if final != nil {
		q.tasks = append(q.tasks, final)
	}
	q.cond.Broadcast()
}

// Next blocks until a task is available and returns it. It returns nil once
// the queue is closed and drained.
func (q *TaskQueue) Next() Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 {
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close has been called.
func (q *TaskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
