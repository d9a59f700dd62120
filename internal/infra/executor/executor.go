// Package executor provides a single-goroutine FIFO task queue.
//
// Every task submitted to an Executor runs on the same goroutine, one at a
// time, in submission order. State touched only from tasks needs no locks.
package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrShutdown is returned when submitting to an executor that has been shut down.
var ErrShutdown = errors.New("executor is shut down")

// Executor runs submitted tasks sequentially on one goroutine.
type Executor struct {
	name string

	mu       sync.Mutex
	queue    []func()
	shutdown bool

	wake chan struct{}
	done chan struct{}
}

// New creates an executor and starts its worker goroutine.
func New(name string) *Executor {
	e := &Executor{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit queues task for execution. It never blocks on the queue, so tasks may
// submit further tasks.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return ErrShutdown
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// SubmitWait queues task and waits for it to finish or for ctx to end.
// It must not be called from a task running on the same executor.
func (e *Executor) SubmitWait(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if err := e.Submit(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks, lets queued tasks finish and waits for the
// worker to exit. It is safe to call more than once.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if !e.shutdown {
		e.shutdown = true
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
	<-e.done
}

// IsShutdown reports whether Shutdown has been called.
func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

func (e *Executor) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			if e.shutdown {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			continue
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.runTask(task)
	}
}

func (e *Executor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("executor", e.name).Interface("panic", r).Msg("Task panicked")
		}
	}()
	task()
}
