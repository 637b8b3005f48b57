// File: core/bridge/flush_bridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FlushBridge sequences a stream of streams against a flushable sink:
// one write processor per nested publisher, one flush per drained unit,
// and a parked fsFlushing stage when the final flush cannot complete
// until the sink reports writability again.

package bridge

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

type flushState int32

const (
	fsUnsubscribed flushState = iota
	fsRequested
	fsReceived
	fsFlushing
	fsFinishing
	fsCompleted
)

// FlushBridge consumes a Publisher of Publishers of buffers. Each nested
// publisher is one flush unit: it is drained through a write processor
// obtained from the sink, and its boundary is sealed with a Flush call.
// The outcome of the whole sequence is published once through the
// completion side.
type FlushBridge struct {
	sink api.FlushableSink

	state   cell[flushState]
	result  *CompletionSignal
	active  atomic.Pointer[procBox]
	units   atomic.Uint64
	flushes atomic.Uint64

	upstream          atomic.Pointer[subBox]
	upstreamCancelled atomic.Bool
	sourceDone        atomic.Bool
}

type procBox struct{ wp api.WriteProcessor }

// NewFlushBridge builds a flush-sequencing processor around sink.
func NewFlushBridge(sink api.FlushableSink) *FlushBridge {
	b := &FlushBridge{sink: sink}
	b.result = NewCompletionSignal(b.Cancel)
	return b
}

// Subscribe attaches the outcome observer.
func (b *FlushBridge) Subscribe(obs api.CompletionObserver) {
	b.result.Subscribe(obs)
}

// OnSubscribe accepts the upstream subscription and requests the first
// flush unit.
func (b *FlushBridge) OnSubscribe(s api.Subscription) {
	if !b.upstream.CompareAndSwap(nil, &subBox{sub: s}) {
		s.Cancel()
		return
	}
	if !b.state.cas(fsUnsubscribed, fsRequested) {
		s.Cancel()
		return
	}
	s.Request(1)
}

// OnNext starts one flush unit: a fresh write processor from the sink is
// subscribed to the nested publisher, and the unit's completion feeds the
// boundary sequencing.
func (b *FlushBridge) OnNext(unit api.Publisher[api.Buffer]) {
	if unit == nil {
		b.cancelUpstream()
		b.terminate(errors.WithMessage(api.ErrInvalidArgument, "nil nested publisher"))
		return
	}
	if !b.state.cas(fsRequested, fsReceived) {
		b.cancelUpstream()
		b.terminate(errors.WithMessage(api.ErrNoDemand, "nested publisher delivered without outstanding request"))
		return
	}
	wp := b.sink.CreateWriteProcessor()
	b.active.Store(&procBox{wp: wp})
	unit.Subscribe(wp)
	wp.Subscribe(&unitObserver{b: b})
}

// OnComplete records that no further unit will arrive. With no unit in
// flight the stream finishes now; otherwise the active unit's boundary
// epilogue re-checks sourceDone.
func (b *FlushBridge) OnComplete() {
	b.sourceDone.Store(true)
	// A competing boundary may have sealed very quickly.
	if b.state.load() == fsRequested {
		b.finishFromRequested()
	}
}

// OnError accepts upstream failure. Terminal for the whole sequence; the
// active unit, if any, is aborted.
func (b *FlushBridge) OnError(err error) {
	b.terminate(err)
}

// OnWritePossible routes renewed writability: a parked final flush takes
// precedence, otherwise the active unit's processor resumes.
func (b *FlushBridge) OnWritePossible() {
	if b.state.load() == fsFlushing {
		b.OnFlushPossible()
		return
	}
	if box := b.active.Load(); box != nil {
		box.wp.OnWritePossible()
	}
}

// OnFlushPossible resumes a parked final flush and completes the stream.
// The claiming transition admits exactly one flusher, so a container
// notification racing the park-time probe cannot reach Flush twice.
func (b *FlushBridge) OnFlushPossible() {
	if !b.state.cas(fsFlushing, fsFinishing) {
		return
	}
	if err := b.sink.Flush(); err != nil {
		b.flushFailed(err)
		return
	}
	b.flushes.Add(1)
	if b.state.cas(fsFinishing, fsCompleted) {
		b.result.PublishComplete()
	}
}

// Cancel aborts the sequence: upstream once, active unit once, nothing
// published.
func (b *FlushBridge) Cancel() {
	b.cancelUpstream()
	for {
		st := b.state.load()
		if st == fsCompleted {
			return
		}
		if b.state.cas(st, fsCompleted) {
			b.abortActive()
			return
		}
	}
}

// unitComplete seals one boundary: flush, then pull the next unit or
// finish the stream.
func (b *FlushBridge) unitComplete() {
	if b.state.load() != fsReceived {
		return
	}
	if err := b.sink.Flush(); err != nil {
		b.flushFailed(err)
		return
	}
	b.flushes.Add(1)
	b.units.Add(1)
	if !b.state.cas(fsReceived, fsRequested) {
		return
	}
	if b.sourceDone.Load() {
		b.finishFromRequested()
		return
	}
	if box := b.upstream.Load(); box != nil {
		box.sub.Request(1)
	}
}

// unitFailed short-circuits the sequence with the failed unit's error.
// The boundary is never flushed on this path.
func (b *FlushBridge) unitFailed(err error) {
	b.cancelUpstream()
	b.terminate(err)
}

// finishFromRequested completes the stream from fsRequested. Buffered
// output still awaiting a flush parks the machine in fsFlushing until the
// sink can take the final flush.
func (b *FlushBridge) finishFromRequested() {
	if b.sink.IsFlushPending() {
		if b.state.cas(fsRequested, fsFlushing) {
			b.flushIfPossible()
		}
		return
	}
	if b.state.cas(fsRequested, fsCompleted) {
		b.result.PublishComplete()
	}
}

func (b *FlushBridge) flushIfPossible() {
	if b.sink.IsWritePossible() {
		b.OnFlushPossible()
	}
}

func (b *FlushBridge) flushFailed(err error) {
	err = errors.Wrap(err, "flush")
	b.sink.FlushingFailed(err)
	b.cancelUpstream()
	b.terminate(err)
}

// terminate drives the machine to fsCompleted, aborts the active unit,
// and publishes err. Exactly one terminal wins.
func (b *FlushBridge) terminate(err error) {
	for {
		st := b.state.load()
		if st == fsCompleted {
			return
		}
		if b.state.cas(st, fsCompleted) {
			b.abortActive()
			b.result.PublishError(err)
			return
		}
	}
}

// abortActive cancels the in-flight unit processor exactly once, which
// discards its parked buffer and cancels its nested subscription.
func (b *FlushBridge) abortActive() {
	if box := b.active.Swap(nil); box != nil {
		box.wp.Cancel()
	}
}

func (b *FlushBridge) cancelUpstream() {
	if !b.upstreamCancelled.CompareAndSwap(false, true) {
		return
	}
	if box := b.upstream.Load(); box != nil {
		box.sub.Cancel()
	}
}

// unitObserver feeds one unit's outcome into the boundary sequencing.
type unitObserver struct{ b *FlushBridge }

func (o *unitObserver) OnSubscribe(api.CompletionHandle) {}
func (o *unitObserver) OnComplete()                      { o.b.unitComplete() }
func (o *unitObserver) OnError(err error)                { o.b.unitFailed(err) }
