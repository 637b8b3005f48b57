// File: core/bridge/write_bridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WriteBridge drives buffers from an upstream Publisher into a pollable,
// non-blocking WritableSink, exactly one buffer in flight at a time, and
// publishes the operation outcome through a CompletionSignal. The
// one-item request discipline is what lets single-buffer host write APIs
// be used without any external queueing.

package bridge

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

type writeState int32

const (
	wsUnsubscribed writeState = iota
	wsRequested
	wsReceived
	wsWriting
	wsCompleted
)

// WriteBridge implements api.WriteProcessor: it is the Subscriber side of
// the buffer stream, the Publisher side of the outcome, and the target of
// the container's OnWritePossible notifications.
//
// Buffer ownership: a parked buffer (wsReceived) belongs to the machine
// and is reclaimed by whichever terminal transition wins. A buffer under
// an active Write call (wsWriting) belongs to the write path alone;
// terminal transitions that interrupt wsWriting leave the buffer in its
// slot and the write path reclaims it when the sink call returns. This
// split is what keeps a buffer from being released mid-Write.
type WriteBridge struct {
	sink api.WritableSink

	state   cell[writeState]
	current bufSlot
	written atomic.Uint64
	result  *CompletionSignal

	upstream          atomic.Pointer[subBox]
	upstreamCancelled atomic.Bool
	sourceDone        atomic.Bool
}

// NewWriteBridge builds a processor around sink. Subscribe the buffer
// Publisher to it, then attach an observer to its completion side.
func NewWriteBridge(sink api.WritableSink) *WriteBridge {
	b := &WriteBridge{sink: sink}
	b.result = NewCompletionSignal(b.Cancel)
	return b
}

// Subscribe attaches the outcome observer.
func (b *WriteBridge) Subscribe(obs api.CompletionObserver) {
	b.result.Subscribe(obs)
}

// OnSubscribe accepts the upstream subscription and requests the first
// buffer. A second subscription is cancelled, as is one arriving after
// the machine already terminated.
func (b *WriteBridge) OnSubscribe(s api.Subscription) {
	if !b.upstream.CompareAndSwap(nil, &subBox{sub: s}) {
		s.Cancel()
		return
	}
	if !b.state.cas(wsUnsubscribed, wsRequested) {
		s.Cancel()
		return
	}
	s.Request(1)
}

// OnNext accepts the single buffer granted by the one-item discipline.
// Empty buffers are elided: released and replaced by a fresh request
// without ever touching the write path.
func (b *WriteBridge) OnNext(buf api.Buffer) {
	if b.state.load() != wsRequested {
		b.unexpectedItem(buf)
		return
	}
	if buf == nil {
		b.cancelUpstream()
		b.terminate(errors.WithMessage(api.ErrInvalidArgument, "nil buffer"))
		return
	}
	if len(buf.Bytes()) == 0 {
		buf.Release()
		if box := b.upstream.Load(); box != nil {
			box.sub.Request(1)
		}
		return
	}
	b.current.put(buf)
	if !b.state.cas(wsRequested, wsReceived) {
		// A terminal transition slipped in while the buffer was being
		// parked and may have missed it; reclaim here. take() admits
		// exactly one claimant, so a racing discard cannot double up.
		b.discardCurrent()
		return
	}
	if b.sink.IsWritePossible() {
		b.OnWritePossible()
	}
}

// OnComplete records that no further buffer will arrive. With nothing in
// flight the machine completes now; otherwise completion is deferred to
// the write path's epilogue, which re-checks sourceDone.
func (b *WriteBridge) OnComplete() {
	b.sourceDone.Store(true)
	// A competing write may have finished very quickly.
	if b.state.load() == wsRequested {
		b.complete()
	}
}

// OnError accepts upstream failure. Terminal; a parked buffer is
// discarded, a mid-write buffer is reclaimed by the write path.
func (b *WriteBridge) OnError(err error) {
	b.terminate(err)
}

// OnWritePossible resumes the write path. Only meaningful with a parked
// buffer; spurious notifications in other states are dropped.
func (b *WriteBridge) OnWritePossible() {
	if b.state.cas(wsReceived, wsWriting) {
		b.doWrite()
	}
}

// Cancel aborts the processor: upstream is cancelled exactly once, the
// parked buffer is discarded, and no outcome is published.
func (b *WriteBridge) Cancel() {
	b.cancelUpstream()
	for {
		st := b.state.load()
		if st == wsCompleted {
			return
		}
		if b.state.cas(st, wsCompleted) {
			if st != wsWriting {
				b.discardCurrent()
			}
			return
		}
	}
}

// doWrite owns the buffer while the machine stays in wsWriting.
func (b *WriteBridge) doWrite() {
	buf := b.current.peek()
	if buf == nil {
		return
	}
	full, err := b.sink.Write(buf)
	if err != nil {
		b.writeFailed(errors.Wrap(err, "write"))
		return
	}
	if !full {
		// Partially consumed: park it again and wait for the next
		// readiness notification. A lost CAS means a terminal interrupted
		// the write; the buffer is ours to reclaim.
		if !b.state.cas(wsWriting, wsReceived) {
			b.discardCurrent()
			return
		}
		// A notification that fired between the failed write and the park
		// found wsWriting and was dropped; re-probe so that edge is not
		// lost for good.
		if b.sink.IsWritePossible() {
			b.OnWritePossible()
		}
		return
	}
	// Fully consumed. The slot is still owned by the write path here, so
	// claim and release before leaving wsWriting; a terminal that
	// interrupts now finds the slot already empty.
	if taken := b.current.take(); taken != nil {
		taken.Release()
	}
	b.written.Add(1)
	if !b.state.cas(wsWriting, wsRequested) {
		return
	}
	b.requestNext()
}

// requestNext pulls one more buffer, or completes when upstream already
// finished. OnComplete re-checks wsRequested, so a completion racing the
// Request call is still delivered by exactly one side.
func (b *WriteBridge) requestNext() {
	if b.sourceDone.Load() {
		b.complete()
		return
	}
	b.sink.WritingPaused()
	if box := b.upstream.Load(); box != nil {
		box.sub.Request(1)
	}
}

func (b *WriteBridge) writeFailed(err error) {
	b.sink.WritingFailed(err)
	b.discardCurrent()
	b.cancelUpstream()
	b.terminate(err)
}

// complete publishes success from wsRequested. Exactly one terminal wins.
func (b *WriteBridge) complete() {
	if b.state.cas(wsRequested, wsCompleted) {
		b.sink.WritingComplete()
		b.result.PublishComplete()
	}
}

// terminate drives the machine to wsCompleted and publishes err. A parked
// buffer is discarded here; a mid-write buffer is left for the write path.
func (b *WriteBridge) terminate(err error) {
	for {
		st := b.state.load()
		if st == wsCompleted {
			return
		}
		if b.state.cas(st, wsCompleted) {
			if st != wsWriting {
				b.discardCurrent()
			}
			b.result.PublishError(err)
			return
		}
	}
}

// unexpectedItem is the shared illegal-transition handler: a buffer
// arrived while the machine was not awaiting one.
func (b *WriteBridge) unexpectedItem(buf api.Buffer) {
	if buf != nil {
		b.sink.DiscardData(buf)
		buf.Release()
	}
	b.cancelUpstream()
	b.terminate(errors.WithMessage(api.ErrNoDemand, "buffer delivered without outstanding request"))
}

// discardCurrent reclaims the parked buffer exactly once: discard hook
// first, then release.
func (b *WriteBridge) discardCurrent() {
	if buf := b.current.take(); buf != nil {
		b.sink.DiscardData(buf)
		buf.Release()
	}
}

func (b *WriteBridge) cancelUpstream() {
	if !b.upstreamCancelled.CompareAndSwap(false, true) {
		return
	}
	if box := b.upstream.Load(); box != nil {
		box.sub.Cancel()
	}
}
