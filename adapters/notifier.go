// File: adapters/notifier.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ResumeNotifier coalesces cross-goroutine resume requests onto a single
// event loop. Each target keeps at most one wakeup queued: storms of
// Notify calls between dispatches collapse into one resume invocation.

package adapters

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/core/concurrency"
)

const (
	notifierBatchSize = 16
	defaultNotifyDepth = 256
)

// ResumeNotifier owns the dispatch loop. All resume functions run on the
// loop goroutine, serialized across targets.
type ResumeNotifier struct {
	loop *concurrency.EventLoop[*ResumeTarget]
}

// ResumeTarget is one registered wakeup sink.
type ResumeTarget struct {
	n      *ResumeNotifier
	resume func()
	queued atomic.Bool
}

// NewResumeNotifier starts the dispatch loop. queueDepth bounds the
// number of distinct targets awaiting dispatch; zero picks the default.
func NewResumeNotifier(queueDepth int) *ResumeNotifier {
	if queueDepth < 1 {
		queueDepth = defaultNotifyDepth
	}
	n := &ResumeNotifier{
		loop: concurrency.NewEventLoop[*ResumeTarget](notifierBatchSize, queueDepth),
	}
	n.loop.RegisterHandler(n)
	go n.loop.Run()
	return n
}

// Target registers a resume function and returns its notify handle.
func (n *ResumeNotifier) Target(resume func()) *ResumeTarget {
	return &ResumeTarget{n: n, resume: resume}
}

// HandleEvent runs on the loop goroutine. The queued flag clears before
// the resume runs, so a Notify arriving mid-resume queues a fresh wakeup.
func (n *ResumeNotifier) HandleEvent(t *ResumeTarget) {
	t.queued.Store(false)
	t.resume()
}

// Close stops the dispatch loop. Wakeups still queued are dropped.
func (n *ResumeNotifier) Close() {
	n.loop.Stop()
}

// Notify schedules the target's resume function. Redundant notifies while
// one wakeup is queued are absorbed; a saturated loop runs the resume
// inline rather than dropping it.
func (t *ResumeTarget) Notify() {
	if !t.queued.CompareAndSwap(false, true) {
		return
	}
	if !t.n.loop.Push(t) {
		t.queued.Store(false)
		t.resume()
	}
}
