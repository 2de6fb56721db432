// Package executor runs units of work without blocking the submitter.
//
// There is no ordering guarantee between separately submitted tasks except
// for Serial, which runs them one at a time in FIFO order, and Inline, which
// runs them on the submitting goroutine.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("executor: closed")

// Executor runs submitted tasks in the background.
type Executor interface {
	// Submit schedules task. It does not wait for task to run.
	Submit(task func()) error

	// Wait blocks until every task submitted so far, and every task those
	// tasks submitted in turn, has returned.
	Wait()
}

// run executes task, logging instead of crashing the host if it panics.
func run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background task panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}

// tracker counts outstanding tasks and rejects submissions after close.
type tracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (t *tracker) add() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.wg.Add(1)
	return nil
}

func (t *tracker) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Go runs every task on its own goroutine.
type Go struct {
	t tracker
}

// NewGo returns an unbounded goroutine executor.
func NewGo() *Go {
	return &Go{}
}

// Submit implements Executor.
func (g *Go) Submit(task func()) error {
	if err := g.t.add(); err != nil {
		return err
	}
	go func() {
		defer g.t.wg.Done()
		run(task)
	}()
	return nil
}

// Wait implements Executor.
func (g *Go) Wait() {
	g.t.wg.Wait()
}

// Close rejects further submissions and waits for running tasks.
func (g *Go) Close() error {
	g.t.close()
	g.t.wg.Wait()
	return nil
}

// Pool runs tasks on goroutines, at most workers at a time. Submit never
// blocks; excess tasks park until a slot frees up.
type Pool struct {
	t   tracker
	sem *semaphore.Weighted
}

// NewPool returns an executor running at most workers tasks concurrently.
// workers < 1 is treated as 1.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Submit implements Executor.
func (p *Pool) Submit(task func()) error {
	if err := p.t.add(); err != nil {
		return err
	}
	go func() {
		defer p.t.wg.Done()
		// Acquire with a background context only fails on cancellation.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		run(task)
	}()
	return nil
}

// Wait implements Executor.
func (p *Pool) Wait() {
	p.t.wg.Wait()
}

// Close rejects further submissions and waits for running tasks.
func (p *Pool) Close() error {
	p.t.close()
	p.t.wg.Wait()
	return nil
}

// Inline runs each task synchronously inside Submit.
// Useful for deterministic tests and for foreground-only hosts.
type Inline struct{}

// Submit implements Executor.
func (Inline) Submit(task func()) error {
	run(task)
	return nil
}

// Wait implements Executor. Inline tasks have always finished.
func (Inline) Wait() {}
