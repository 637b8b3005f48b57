// File: fake/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Demand-aware stream endpoints for driving bridges from tests: an
// Emitter that honors backpressure while replaying a scripted item
// sequence, a Collector that consumes buffers and records terminals, and
// a SignalRecorder for completion publishers.

package fake

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

type nopSubscription struct{}

func (nopSubscription) Request(uint64) {}
func (nopSubscription) Cancel()        {}

// Emitter is a single-use Publisher that queues emitted items and
// delivers them strictly against outstanding demand. Terminals follow
// the reactive discipline: Complete waits for queued items to drain,
// Fail preempts them. Signals re-entering the emitter from inside OnNext
// are absorbed by a work-in-progress loop instead of recursing.
type Emitter[T any] struct {
	// OnDrop runs for every queued item discarded by Cancel or by a
	// preempting Fail. Buffer emitters set it to release ownership. It
	// must not call back into the emitter.
	OnDrop func(item T)

	mu         sync.Mutex
	sub        api.Subscriber[T]
	pending    *queue.Queue
	demand     uint64
	requests   []uint64
	cancels    int
	subscribes int
	cancelled  bool
	termDone   bool
	termErr    error
	finished   bool
	draining   bool
}

func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{pending: queue.New()}
}

// NewBufferEmitter returns an emitter whose dropped buffers are released.
func NewBufferEmitter() *Emitter[api.Buffer] {
	e := NewEmitter[api.Buffer]()
	e.OnDrop = func(buf api.Buffer) {
		if buf != nil {
			buf.Release()
		}
	}
	return e
}

var _ api.Publisher[api.Buffer] = (*Emitter[api.Buffer])(nil)

// Subscribe attaches the single subscriber and replays anything queued
// before it arrived. A second subscriber is rejected through OnError.
func (e *Emitter[T]) Subscribe(s api.Subscriber[T]) {
	e.mu.Lock()
	e.subscribes++
	if e.sub != nil {
		e.mu.Unlock()
		s.OnSubscribe(nopSubscription{})
		s.OnError(errors.WithMessage(api.ErrAlreadySubscribed, "emitter supports one subscriber"))
		return
	}
	e.sub = s
	e.mu.Unlock()
	s.OnSubscribe(emitterSub[T]{e})
	e.drain()
}

// Emit queues one item for delivery under demand. Items queued after a
// terminal or cancellation are dropped.
func (e *Emitter[T]) Emit(item T) {
	e.mu.Lock()
	if e.cancelled || e.finished || e.termDone || e.termErr != nil {
		drop := e.OnDrop
		e.mu.Unlock()
		if drop != nil {
			drop(item)
		}
		return
	}
	e.pending.Add(item)
	e.mu.Unlock()
	e.drain()
}

// Complete schedules successful termination after queued items drain.
func (e *Emitter[T]) Complete() {
	e.mu.Lock()
	if !e.cancelled && !e.finished && e.termErr == nil {
		e.termDone = true
	}
	e.mu.Unlock()
	e.drain()
}

// Fail terminates with err, discarding any queued items.
func (e *Emitter[T]) Fail(err error) {
	e.mu.Lock()
	if !e.cancelled && !e.finished {
		e.termErr = err
	}
	e.mu.Unlock()
	e.drain()
}

func (e *Emitter[T]) drain() {
	e.mu.Lock()
	if e.draining || e.sub == nil {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for !e.finished && !e.cancelled {
		if e.termErr != nil {
			e.dropQueuedLocked()
			e.finished = true
			sub, err := e.sub, e.termErr
			e.mu.Unlock()
			sub.OnError(err)
			e.mu.Lock()
			break
		}
		if e.pending.Length() > 0 && e.demand > 0 {
			item, _ := e.pending.Remove().(T)
			if e.demand != api.Unbounded {
				e.demand--
			}
			sub := e.sub
			e.mu.Unlock()
			sub.OnNext(item)
			e.mu.Lock()
			continue
		}
		if e.pending.Length() == 0 && e.termDone {
			e.finished = true
			sub := e.sub
			e.mu.Unlock()
			sub.OnComplete()
			e.mu.Lock()
			break
		}
		break
	}
	e.draining = false
	e.mu.Unlock()
}

func (e *Emitter[T]) dropQueuedLocked() {
	for e.pending.Length() > 0 {
		item, _ := e.pending.Remove().(T)
		if e.OnDrop != nil {
			e.OnDrop(item)
		}
	}
}

func (e *Emitter[T]) request(n uint64) {
	e.mu.Lock()
	e.requests = append(e.requests, n)
	if !e.cancelled && !e.finished && n > 0 {
		if n >= api.Unbounded-e.demand {
			e.demand = api.Unbounded
		} else {
			e.demand += n
		}
	}
	e.mu.Unlock()
	e.drain()
}

func (e *Emitter[T]) cancel() {
	e.mu.Lock()
	e.cancels++
	if !e.cancelled {
		e.cancelled = true
		e.dropQueuedLocked()
	}
	e.mu.Unlock()
}

type emitterSub[T any] struct{ e *Emitter[T] }

func (s emitterSub[T]) Request(n uint64) { s.e.request(n) }
func (s emitterSub[T]) Cancel()          { s.e.cancel() }

// Requests returns every demand grant received, in order.
func (e *Emitter[T]) Requests() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint64(nil), e.requests...)
}

// Demand reports the demand still outstanding.
func (e *Emitter[T]) Demand() uint64 { e.mu.Lock(); defer e.mu.Unlock(); return e.demand }

func (e *Emitter[T]) Cancels() int    { e.mu.Lock(); defer e.mu.Unlock(); return e.cancels }
func (e *Emitter[T]) Subscribes() int { e.mu.Lock(); defer e.mu.Unlock(); return e.subscribes }

// Pending reports how many emitted items still await demand.
func (e *Emitter[T]) Pending() int { e.mu.Lock(); defer e.mu.Unlock(); return e.pending.Length() }

var _ api.Subscriber[api.Buffer] = (*Collector)(nil)

// Collector consumes a buffer stream, releasing each buffer on arrival
// and recording payloads and terminals. Configure the demand strategy
// before subscribing; Done unblocks on the first terminal signal.
type Collector struct {
	// RequestOnSubscribe is the demand issued from OnSubscribe.
	RequestOnSubscribe uint64
	// RequestOnNext is the demand issued after each delivered item.
	RequestOnNext uint64
	// CancelAfter cancels the subscription once that many items arrived.
	// Zero disables it.
	CancelAfter int

	mu        sync.Mutex
	sub       api.Subscription
	items     []string
	errs      []error
	completes int
	done      chan struct{}
}

func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

func (c *Collector) OnSubscribe(s api.Subscription) {
	c.mu.Lock()
	c.sub = s
	c.mu.Unlock()
	if c.RequestOnSubscribe > 0 {
		s.Request(c.RequestOnSubscribe)
	}
}

func (c *Collector) OnNext(buf api.Buffer) {
	c.mu.Lock()
	c.items = append(c.items, string(buf.Bytes()))
	n := len(c.items)
	sub := c.sub
	c.mu.Unlock()
	buf.Release()
	if c.CancelAfter > 0 && n == c.CancelAfter {
		sub.Cancel()
		return
	}
	if c.RequestOnNext > 0 {
		sub.Request(c.RequestOnNext)
	}
}

func (c *Collector) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.signalDoneLocked()
	c.mu.Unlock()
}

func (c *Collector) OnComplete() {
	c.mu.Lock()
	c.completes++
	c.signalDoneLocked()
	c.mu.Unlock()
}

func (c *Collector) signalDoneLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Items returns the payloads delivered so far.
func (c *Collector) Items() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.items...)
}

func (c *Collector) Errs() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// Err returns the first terminal error, or nil.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs[0]
}

func (c *Collector) Completes() int { c.mu.Lock(); defer c.mu.Unlock(); return c.completes }

// Subscription returns the handle received in OnSubscribe.
func (c *Collector) Subscription() api.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// Done unblocks when the first terminal signal lands.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Wait blocks until a terminal signal or the timeout.
func (c *Collector) Wait(d time.Duration) error {
	select {
	case <-c.done:
		return nil
	case <-time.After(d):
		return errors.New("collector: timeout waiting for terminal signal")
	}
}

var _ api.CompletionObserver = (*SignalRecorder)(nil)

// SignalRecorder observes a CompletionPublisher, recording the handle
// and terminal outcome. Done unblocks on the first terminal.
type SignalRecorder struct {
	mu        sync.Mutex
	handle    api.CompletionHandle
	completes int
	errs      []error
	done      chan struct{}
}

func NewSignalRecorder() *SignalRecorder {
	return &SignalRecorder{done: make(chan struct{})}
}

func (r *SignalRecorder) OnSubscribe(h api.CompletionHandle) {
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
}

func (r *SignalRecorder) OnComplete() {
	r.mu.Lock()
	r.completes++
	r.signalDoneLocked()
	r.mu.Unlock()
}

func (r *SignalRecorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.signalDoneLocked()
	r.mu.Unlock()
}

func (r *SignalRecorder) signalDoneLocked() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Handle returns the cancellation capability received on subscribe.
func (r *SignalRecorder) Handle() api.CompletionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

func (r *SignalRecorder) Completes() int { r.mu.Lock(); defer r.mu.Unlock(); return r.completes }

func (r *SignalRecorder) Errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Err returns the first terminal error, or nil.
func (r *SignalRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[0]
}

// Done unblocks when the first terminal signal lands.
func (r *SignalRecorder) Done() <-chan struct{} { return r.done }

// Wait blocks until a terminal signal or the timeout.
func (r *SignalRecorder) Wait(d time.Duration) error {
	select {
	case <-r.done:
		return nil
	case <-time.After(d):
		return errors.New("signal recorder: timeout waiting for terminal signal")
	}
}
