// File: core/concurrency/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop is a batched dispatch loop with dynamic handler registration
// and adaptive backoff. Handler list updates use mutex-protected
// copy-on-write so the hot path reads one atomic snapshot per batch.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventHandler consumes events dispatched by an EventLoop.
type EventHandler[T any] interface {
	// HandleEvent processes a single event.
	HandleEvent(ev T)
}

// EventLoop drains a buffered inbox in batches and fans each event out to
// every registered handler, on the loop goroutine.
type EventLoop[T any] struct {
	handlers   atomic.Value // []EventHandler[T], swapped whole
	handlersMu sync.Mutex
	inbox      chan T
	batchSize  int
	quitCh     chan struct{}
	doneCh     chan struct{}
	running    atomic.Bool
}

// NewEventLoop creates an EventLoop. batchSize caps the number of events
// handled per cycle; inboxCapacity sizes the buffered inbox.
func NewEventLoop[T any](batchSize, inboxCapacity int) *EventLoop[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	if inboxCapacity < 1 {
		inboxCapacity = 1
	}
	el := &EventLoop[T]{
		inbox:     make(chan T, inboxCapacity),
		batchSize: batchSize,
		quitCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	el.handlers.Store([]EventHandler[T]{})
	return el
}

// RegisterHandler adds a handler. Safe concurrently with Run.
func (el *EventLoop[T]) RegisterHandler(h EventHandler[T]) {
	el.handlersMu.Lock()
	defer el.handlersMu.Unlock()
	old := el.handlers.Load().([]EventHandler[T])
	next := make([]EventHandler[T], len(old)+1)
	copy(next, old)
	next[len(old)] = h
	el.handlers.Store(next)
}

// UnregisterHandler removes a handler, if present.
func (el *EventLoop[T]) UnregisterHandler(h EventHandler[T]) {
	el.handlersMu.Lock()
	defer el.handlersMu.Unlock()
	old := el.handlers.Load().([]EventHandler[T])
	next := make([]EventHandler[T], 0, len(old))
	for _, handler := range old {
		if handler != h {
			next = append(next, handler)
		}
	}
	el.handlers.Store(next)
}

// Run dispatches batches until Stop is called. A second concurrent Run is
// a no-op.
func (el *EventLoop[T]) Run() {
	if !el.running.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		close(el.doneCh)
		el.running.Store(false)
	}()

	batch := make([]T, 0, el.batchSize)
	backoffNs := int64(1)
	const maxBackoffNs = int64(1_000_000)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	for {
		batch = batch[:0]

	DrainLoop:
		for i := 0; i < el.batchSize; i++ {
			select {
			case ev := <-el.inbox:
				batch = append(batch, ev)
			default:
				break DrainLoop
			}
		}

		if len(batch) == 0 {
			timer.Reset(time.Duration(backoffNs) * time.Nanosecond)
			select {
			case <-el.quitCh:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return
			case ev := <-el.inbox:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				batch = append(batch, ev)
				backoffNs = 1
			case <-timer.C:
				backoffNs *= 2
				if backoffNs > maxBackoffNs {
					backoffNs = maxBackoffNs
				}
				continue
			}
		}

		handlers := el.handlers.Load().([]EventHandler[T])
		for _, ev := range batch {
			for _, handler := range handlers {
				handler.HandleEvent(ev)
			}
		}
		backoffNs = 1
	}
}

// Push offers an event without blocking; false means the inbox is full.
func (el *EventLoop[T]) Push(ev T) bool {
	select {
	case el.inbox <- ev:
		return true
	default:
		return false
	}
}

// Pending reports the approximate number of undispatched events.
func (el *EventLoop[T]) Pending() int {
	return len(el.inbox)
}

// Stop signals Run to exit and waits for it to finish. Idempotent; safe to
// call even if Run was never started.
func (el *EventLoop[T]) Stop() {
	select {
	case <-el.quitCh:
	default:
		close(el.quitCh)
	}
	if el.running.Load() {
		<-el.doneCh
	}
}
