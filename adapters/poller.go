// File: adapters/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ReadinessDispatcher pumps reactor events to per-descriptor targets.
// Hook invocations are submitted to the executor so a slow callback never
// stalls the poll loop; a saturated executor runs the hook inline because
// edge-triggered readiness must not be dropped.

package adapters

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

const defaultPollBatch = 64

// ReadinessTarget carries the hooks invoked for one descriptor's events.
// Nil hooks are skipped.
type ReadinessTarget struct {
	OnReadable func()
	OnWritable func()
	OnFailure  func(error)
}

// ReadinessDispatcher owns a poll goroutine over one reactor. It does not
// own the reactor or the executor; Close stops only the loop.
type ReadinessDispatcher struct {
	reactor api.Reactor
	exec    api.Executor
	batch   int

	mu      sync.RWMutex
	targets map[int]ReadinessTarget

	done     chan struct{}
	once     sync.Once
	loopDone chan struct{}
}

// NewReadinessDispatcher starts the poll loop. Zero batchSize picks the
// package default.
func NewReadinessDispatcher(r api.Reactor, exec api.Executor, batchSize int) *ReadinessDispatcher {
	if batchSize < 1 {
		batchSize = defaultPollBatch
	}
	d := &ReadinessDispatcher{
		reactor:  r,
		exec:     exec,
		batch:    batchSize,
		targets:  make(map[int]ReadinessTarget),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go d.loop()
	return d
}

// Watch registers fd with the reactor and routes its events to target.
func (d *ReadinessDispatcher) Watch(fd int, ops api.Ops, target ReadinessTarget) error {
	d.mu.Lock()
	d.targets[fd] = target
	d.mu.Unlock()
	if err := d.reactor.Register(fd, ops); err != nil {
		d.mu.Lock()
		delete(d.targets, fd)
		d.mu.Unlock()
		return errors.WithMessage(err, "watch descriptor")
	}
	return nil
}

// Unwatch removes fd from the reactor and forgets its target.
func (d *ReadinessDispatcher) Unwatch(fd int) error {
	err := d.reactor.Deregister(fd)
	d.mu.Lock()
	delete(d.targets, fd)
	d.mu.Unlock()
	return errors.WithMessage(err, "unwatch descriptor")
}

// Close stops the poll loop and waits for it to exit.
func (d *ReadinessDispatcher) Close() {
	d.once.Do(func() { close(d.done) })
	_ = d.reactor.Wakeup()
	<-d.loopDone
}

func (d *ReadinessDispatcher) loop() {
	defer close(d.loopDone)
	events := make([]api.Event, d.batch)
	for {
		n, err := d.reactor.Poll(events, -1)
		select {
		case <-d.done:
			return
		default:
		}
		if err != nil {
			// Readiness is gone; every watcher learns through OnFailure.
			d.failAll(errors.Wrap(err, "readiness poll"))
			return
		}
		for i := 0; i < n; i++ {
			d.dispatch(events[i])
		}
	}
}

func (d *ReadinessDispatcher) dispatch(ev api.Event) {
	d.mu.RLock()
	target, ok := d.targets[ev.FD]
	d.mu.RUnlock()
	if !ok {
		return
	}
	ops := ev.Ops
	run := func() {
		if ops.Failed() {
			if target.OnFailure != nil {
				target.OnFailure(errors.WithMessage(api.ErrStreamClosed, "descriptor failed"))
			}
			return
		}
		if ops.Readable() && target.OnReadable != nil {
			target.OnReadable()
		}
		if ops.Writable() && target.OnWritable != nil {
			target.OnWritable()
		}
	}
	if err := d.exec.Submit(run); err != nil {
		run()
	}
}

func (d *ReadinessDispatcher) failAll(err error) {
	d.mu.RLock()
	targets := make([]ReadinessTarget, 0, len(d.targets))
	for _, t := range d.targets {
		targets = append(targets, t)
	}
	d.mu.RUnlock()
	for _, t := range targets {
		if t.OnFailure == nil {
			continue
		}
		t := t
		if subErr := d.exec.Submit(func() { t.OnFailure(err) }); subErr != nil {
			t.OnFailure(err)
		}
	}
}
