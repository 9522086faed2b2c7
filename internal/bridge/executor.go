package bridge

import (
	"sync"

	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/rs/zerolog"
)

// Executor runs submitted tasks one at a time, in submission order, on its
// own goroutine. The queue is unbounded: Submit never waits, however slow
// the tasks are.
type Executor struct {
	mu     sync.Mutex
	closed bool
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	log    zerolog.Logger
}

// NewExecutor starts the worker. capacity presizes the queue.
func NewExecutor(capacity int) *Executor {
	if capacity < 1 {
		capacity = 64
	}
	e := &Executor{
		queue: make([]func(), 0, capacity),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   logging.Component("bridge.executor"),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	var batch []func()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		batch, e.queue = e.queue, batch[:0]
		e.mu.Unlock()

		for i, fn := range batch {
			e.call(fn)
			batch[i] = nil
		}
	}
}

func (e *Executor) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Submit queues fn. It reports false once the executor is closed.
func (e *Executor) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	e.signal()
	return true
}

// Pending reports tasks queued but not yet picked up by the worker.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Flush blocks until every task submitted before the call has run.
func (e *Executor) Flush() {
	ch := make(chan struct{})
	if !e.Submit(func() { close(ch) }) {
		return
	}
	<-ch
}

// Close runs the remaining tasks and stops the goroutine.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.signal()
	}
	e.mu.Unlock()
	<-e.done
}
