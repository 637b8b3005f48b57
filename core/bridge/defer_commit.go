// File: core/bridge/defer_commit.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DeferredCommitOperator gates an expensive commit side effect on the
// source's first signal. The source is subscribed eagerly but nothing
// reaches the write path until the first signal arrives: an item or a
// completion runs commit exactly once and replays the cached signal into
// the write path; an error bypasses commit entirely and flows straight to
// the outcome observer.

package bridge

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

type commitState int32

const (
	csNew commitState = iota
	csFirstSignal
	csEmitting
	csReady
)

// CommitFunc produces the terminal-outcome publisher for a write, given
// the source view it must consume. It runs at most once, and never when
// the source fails before its first signal.
type CommitFunc func(source api.Publisher[api.Buffer]) api.CompletionPublisher

// DeferredCommitOperator composes a buffer source with a commit function
// and exposes the write outcome as a CompletionPublisher. The view handed
// to commit replays the cached first signal and then passes every later
// signal through untouched, so the write path observes the stream as if
// it had been attached from the start.
type DeferredCommitOperator struct {
	source api.Publisher[api.Buffer]
	commit CommitFunc
	relay  *CompletionSignal

	state   cell[commitState]
	started atomic.Bool
	aborted atomic.Bool

	upstream          atomic.Pointer[subBox]
	upstreamCancelled atomic.Bool

	// Cached first signal: at most one buffer, or a terminal flag. A
	// terminal arriving after the first signal is stashed in the same
	// slots and pushed through once the write path attaches.
	first     bufSlot
	firstDone atomic.Bool
	firstErr  errSlot

	writeSubSet atomic.Bool
	writeSub    api.Subscriber[api.Buffer]
	pending     demand

	// One-shot forwarding guards: the emitting goroutine's epilogue and a
	// stashing goroutine's recheck may both see a terminal; only one may
	// deliver it.
	errForwarded  atomic.Bool
	doneForwarded atomic.Bool

	commitHandle atomic.Pointer[handleBox]
}

// NewDeferredCommit wraps source so commit runs only once the source
// proves viable.
func NewDeferredCommit(source api.Publisher[api.Buffer], commit CommitFunc) *DeferredCommitOperator {
	d := &DeferredCommitOperator{source: source, commit: commit}
	d.relay = NewCompletionSignal(d.abort)
	return d
}

// Subscribe attaches the outcome observer and, on first attach, triggers
// the eager source subscription.
func (d *DeferredCommitOperator) Subscribe(obs api.CompletionObserver) {
	d.relay.Subscribe(obs)
	if d.started.CompareAndSwap(false, true) {
		d.source.Subscribe(commitBarrier{d: d})
	}
}

// commitBarrier is the Subscriber the operator presents to the source.
type commitBarrier struct{ d *DeferredCommitOperator }

func (b commitBarrier) OnSubscribe(s api.Subscription) { b.d.barrierSubscribe(s) }
func (b commitBarrier) OnNext(buf api.Buffer)          { b.d.barrierNext(buf) }
func (b commitBarrier) OnError(err error)              { b.d.barrierError(err) }
func (b commitBarrier) OnComplete()                    { b.d.barrierComplete() }

func (d *DeferredCommitOperator) barrierSubscribe(s api.Subscription) {
	if !d.upstream.CompareAndSwap(nil, &subBox{sub: s}) {
		s.Cancel()
		return
	}
	if d.aborted.Load() {
		s.Cancel()
		return
	}
	s.Request(1)
}

func (d *DeferredCommitOperator) barrierNext(buf api.Buffer) {
	if d.state.load() == csReady {
		d.writeSub.OnNext(buf)
		return
	}
	if d.state.cas(csNew, csFirstSignal) {
		d.first.put(buf)
		if d.aborted.Load() {
			d.releaseCached()
			return
		}
		d.runCommit()
		return
	}
	// An item beyond the single requested one, before the write path
	// attached.
	if buf != nil {
		buf.Release()
	}
	d.cancelUpstreamOnce()
	d.releaseCached()
	d.relay.PublishError(errors.WithMessage(api.ErrNoDemand, "item delivered before write path attached"))
}

func (d *DeferredCommitOperator) barrierError(err error) {
	if d.state.load() == csReady {
		if d.errForwarded.CompareAndSwap(false, true) {
			d.writeSub.OnError(err)
		}
		return
	}
	if d.state.cas(csNew, csFirstSignal) {
		// Failure before any data: commit is bypassed entirely.
		d.relay.PublishError(err)
		return
	}
	d.firstErr.set(err)
	d.forwardStashed()
}

func (d *DeferredCommitOperator) barrierComplete() {
	if d.state.load() == csReady {
		if d.doneForwarded.CompareAndSwap(false, true) {
			d.writeSub.OnComplete()
		}
		return
	}
	d.firstDone.Store(true)
	if d.state.cas(csNew, csFirstSignal) {
		if d.aborted.Load() {
			return
		}
		d.runCommit()
		return
	}
	d.forwardStashed()
}

func (d *DeferredCommitOperator) runCommit() {
	result := d.commit(viewPublisher{d: d})
	if result == nil {
		d.cancelUpstreamOnce()
		d.releaseCached()
		d.relay.PublishError(errors.WithMessage(api.ErrInvalidArgument, "commit returned no completion publisher"))
		return
	}
	result.Subscribe(&commitRelay{d: d})
}

// forwardStashed pushes a terminal stashed after the first signal through
// to the write path once it is attached. The one-shot guards keep
// delivery exactly-once against the emitting goroutine's own epilogue.
func (d *DeferredCommitOperator) forwardStashed() {
	if d.state.load() != csReady {
		return
	}
	if err := d.firstErr.get(); err != nil {
		if d.errForwarded.CompareAndSwap(false, true) {
			d.writeSub.OnError(err)
		}
		return
	}
	if d.firstDone.Load() && d.doneForwarded.CompareAndSwap(false, true) {
		d.writeSub.OnComplete()
	}
}

// abort is the relay's cancellation hook: the outcome observer lost
// interest, so tear down both sides and drop the cache.
func (d *DeferredCommitOperator) abort() {
	d.aborted.Store(true)
	d.cancelUpstreamOnce()
	if box := d.commitHandle.Load(); box != nil {
		box.h.Cancel()
	}
	d.releaseCached()
}

func (d *DeferredCommitOperator) releaseCached() {
	if buf := d.first.take(); buf != nil {
		buf.Release()
	}
}

func (d *DeferredCommitOperator) cancelUpstreamOnce() {
	if !d.upstreamCancelled.CompareAndSwap(false, true) {
		return
	}
	if box := d.upstream.Load(); box != nil {
		box.sub.Cancel()
	}
}

func (d *DeferredCommitOperator) forwardDemand(n uint64) {
	if box := d.upstream.Load(); box != nil {
		box.sub.Request(n)
	}
}

// viewPublisher is the source view handed to the commit function.
type viewPublisher struct{ d *DeferredCommitOperator }

// Subscribe attaches the write path. Single-use, like every publisher in
// this package.
func (v viewPublisher) Subscribe(sub api.Subscriber[api.Buffer]) {
	d := v.d
	if !d.writeSubSet.CompareAndSwap(false, true) {
		sub.OnSubscribe(inertSubscription{})
		sub.OnError(errors.WithMessage(api.ErrAlreadySubscribed, "write path supports one subscriber"))
		return
	}
	d.writeSub = sub
	sub.OnSubscribe(viewSubscription{d: d})
}

type viewSubscription struct{ d *DeferredCommitOperator }

func (s viewSubscription) Request(n uint64) { s.d.viewRequest(n) }

func (s viewSubscription) Cancel() {
	s.d.cancelUpstreamOnce()
	s.d.releaseCached()
}

func (d *DeferredCommitOperator) viewRequest(n uint64) {
	if n == 0 {
		return
	}
	for {
		switch d.state.load() {
		case csReady:
			d.forwardDemand(n)
			return
		case csEmitting:
			// Another goroutine is replaying the cached signal; fold this
			// demand into its epilogue. If it finished in the meantime it
			// may have missed the fold, so claim the demand back.
			d.pending.add(n)
			if d.state.load() == csReady {
				if rem := d.pending.take(); rem > 0 {
					d.forwardDemand(rem)
				}
			}
			return
		case csFirstSignal:
			if d.state.cas(csFirstSignal, csEmitting) {
				d.emitCached(n)
				return
			}
		default:
			// csNew: no write path can exist before the first signal.
			return
		}
	}
}

// emitCached replays the cached first signal to the just-attached write
// path, then forwards the remaining demand upstream. Runs exactly once,
// on the goroutine that wins the csFirstSignal -> csEmitting transition.
// Re-entrant requests from inside the replayed OnNext land in csEmitting
// and fold into the epilogue here.
func (d *DeferredCommitOperator) emitCached(n uint64) {
	if err := d.firstErr.get(); err != nil {
		d.releaseCached()
		d.state.store(csReady)
		if d.errForwarded.CompareAndSwap(false, true) {
			d.writeSub.OnError(err)
		}
		return
	}
	var used uint64
	if buf := d.first.take(); buf != nil {
		used = 1
		d.writeSub.OnNext(buf)
	}
	if d.firstDone.Load() {
		d.state.store(csReady)
		if d.doneForwarded.CompareAndSwap(false, true) {
			d.writeSub.OnComplete()
		}
		return
	}
	d.state.store(csReady)
	// A terminal stashed while the replay ran is ours to push through.
	d.forwardStashed()
	rem := d.pending.take()
	if n == api.Unbounded || rem == api.Unbounded {
		d.forwardDemand(api.Unbounded)
		return
	}
	total := rem + n
	if total < rem {
		d.forwardDemand(api.Unbounded)
		return
	}
	if total > used {
		d.forwardDemand(total - used)
	}
}

// commitRelay forwards the commit result's outcome to the operator's own
// observer and keeps the handle for abort propagation.
type commitRelay struct{ d *DeferredCommitOperator }

func (r *commitRelay) OnSubscribe(h api.CompletionHandle) {
	r.d.commitHandle.Store(&handleBox{h: h})
	if r.d.aborted.Load() {
		h.Cancel()
	}
}

func (r *commitRelay) OnComplete()       { r.d.relay.PublishComplete() }
func (r *commitRelay) OnError(err error) { r.d.relay.PublishError(err) }
