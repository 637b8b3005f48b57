// File: facade/operation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operation translates a bridge's completion side into the Go idiom:
// a done channel, a latched error, and cancellation. The zero signal
// vocabulary of CompletionObserver stays inside this file; callers select
// on Done and inspect Err.

package facade

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

var (
	_ api.Cancelable         = (*Operation)(nil)
	_ api.CompletionObserver = (*Operation)(nil)
)

// Operation is one in-flight streaming write. It observes the bridge's
// completion publisher and settles exactly once: on success Err returns
// nil, on failure the bridge's error, on Cancel api.ErrCancelled.
//
// Done unblocks when the outcome latches. Adapter teardown behind the
// operation (draining a writer backlog, closing files) runs after that;
// Streams.Close waits for it.
type Operation struct {
	done     chan struct{}
	teardown func()

	mu       sync.Mutex
	handle   api.CompletionHandle
	err      error
	finished bool
}

func newOperation(teardown func()) *Operation {
	return &Operation{done: make(chan struct{}), teardown: teardown}
}

// OnSubscribe retains the handle so Cancel can reach the bridge.
func (o *Operation) OnSubscribe(h api.CompletionHandle) {
	o.mu.Lock()
	o.handle = h
	o.mu.Unlock()
}

// OnComplete latches success.
func (o *Operation) OnComplete() { o.finish(nil) }

// OnError latches failure.
func (o *Operation) OnError(err error) { o.finish(err) }

// Done is closed once the outcome is decided.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Err returns the latched outcome; nil while the operation is running and
// after success.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Cancel abandons the operation: the bridge tears down silently and the
// outcome latches as api.ErrCancelled. A terminal that already latched
// wins; Cancel then leaves it untouched. Always returns nil.
func (o *Operation) Cancel() error {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		return nil
	}
	h := o.handle
	o.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
	o.finish(errors.WithMessage(api.ErrCancelled, "operation abandoned"))
	return nil
}

// Wait blocks until the outcome is decided or d elapses.
func (o *Operation) Wait(d time.Duration) error {
	select {
	case <-o.done:
		return o.Err()
	case <-time.After(d):
		return errors.WithMessage(api.ErrOperationTimeout, "operation still running")
	}
}

// finish latches the first outcome, runs the facade teardown, then
// unblocks Done. Later outcomes are dropped. The teardown itself never
// blocks; slow work behind it (draining a sink) is handed off.
func (o *Operation) finish(err error) {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		return
	}
	o.finished = true
	o.err = err
	o.mu.Unlock()
	if o.teardown != nil {
		o.teardown()
	}
	close(o.done)
}
