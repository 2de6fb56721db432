package executor

import (
	"context"
	"log/slog"
	"sync"
)

// Serial runs tasks one at a time, in submission order, on the goroutine
// that calls Run.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine, including from inside a task
//   - Run(): must be called from exactly one goroutine
//
// Wait blocks forever if Run is never called.
type Serial struct {
	t     tracker
	queue *taskQueue
}

// NewSerial returns a serial executor. Call Run to start processing.
func NewSerial() *Serial {
	return &Serial{queue: newTaskQueue()}
}

// Submit implements Executor.
func (s *Serial) Submit(task func()) error {
	if err := s.t.add(); err != nil {
		return err
	}
	if !s.queue.Enqueue(task) {
		s.t.wg.Done()
		return ErrClosed
	}
	return nil
}

// Wait implements Executor.
func (s *Serial) Wait() {
	s.t.wg.Wait()
}

// Run processes tasks until ctx is cancelled or Close is called.
// Tasks already queued when Close is called still run.
func (s *Serial) Run(ctx context.Context) error {
	slog.Debug("serial executor starting")

	for {
		if task, ok := s.queue.TryDequeue(); ok {
			run(task)
			s.t.wg.Done()
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("serial executor stopping: context cancelled")
			s.Close()
			s.drain()
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel is closed by Close, so this case also fires
			// on shutdown.
			if s.queue.Closed() && s.queue.Len() == 0 {
				slog.Debug("serial executor stopping: queue closed")
				return nil
			}
		}
	}
}

// Close rejects further submissions. Run returns once the queue is empty.
func (s *Serial) Close() error {
	s.t.close()
	s.queue.Close()
	return nil
}

// drain discards queued tasks so Wait does not block after cancellation.
func (s *Serial) drain() {
	for {
		if _, ok := s.queue.TryDequeue(); !ok {
			return
		}
		s.t.wg.Done()
	}
}

// taskQueue is a thread-safe unbounded FIFO queue of tasks.
//
// The queue is unbounded so a task can submit follow-on tasks without
// blocking the Run loop that is executing it.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, task)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	task := q.tasks[0]
	// Nil out the slot so the closure can be collected.
	q.tasks[0] = nil

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return task, true
}

// Wait returns a channel that signals when tasks may be available.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close has been called.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close wakes any waiter and rejects further tasks.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
