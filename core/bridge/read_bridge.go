// File: core/bridge/read_bridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ReadBridge adapts a pollable, non-blocking input source into a
// demand-driven Publisher of buffers. Demand arrives on the consumer
// goroutine; readability arrives on whatever goroutine the container
// uses, possibly synchronously from inside CheckAvailable. The state
// cell is the only arbiter between the two.

package bridge

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

type readState int32

const (
	rsUnsubscribed readState = iota
	rsSubscribing
	rsNoDemand
	rsDemand
	rsReading
	rsCompleted
)

// ReadBridge is a single-use Publisher over a ReadableSource. It also
// implements api.ReadCallbacks, the re-entrant entry points the container
// invokes as input becomes readable, ends, or fails.
type ReadBridge struct {
	src api.ReadableSource

	state     cell[readState]
	demand    demand
	delivered atomic.Uint64
	sub       api.Subscriber[api.Buffer]

	// Terminal signals may arrive mid-read; they are latched here and
	// replayed once the machine leaves the read loop.
	pendingDone atomic.Bool
	pendingErr  errSlot
}

// NewReadBridge wraps src. Wire the returned bridge into the container as
// the read-callback target, then hand it to the consumer as a Publisher.
func NewReadBridge(src api.ReadableSource) *ReadBridge {
	return &ReadBridge{src: src}
}

// Subscribe attaches the single consumer. A second Subscribe is rejected
// through the late consumer's OnError.
func (b *ReadBridge) Subscribe(sub api.Subscriber[api.Buffer]) {
	if !b.state.cas(rsUnsubscribed, rsSubscribing) {
		sub.OnSubscribe(inertSubscription{})
		sub.OnError(errors.WithMessage(api.ErrAlreadySubscribed, "read bridge supports one subscriber"))
		return
	}
	b.sub = sub
	sub.OnSubscribe(readSubscription{b: b})
	// The CAS fails when the consumer cancelled from inside OnSubscribe.
	if !b.state.cas(rsSubscribing, rsNoDemand) {
		return
	}
	b.replayPending()
	if b.demand.get() > 0 {
		b.toDemand(rsNoDemand)
	}
}

// OnDataAvailable signals that Read would yield data. Only meaningful in
// rsDemand; every other state either has no use for it or is already
// inside a read loop that re-checks on its own.
func (b *ReadBridge) OnDataAvailable() {
	if b.state.cas(rsDemand, rsReading) {
		b.drain()
		b.exitReadLoop()
	}
}

// OnAllDataRead signals clean end of input. Latched when a read loop is
// running and replayed once it exits.
func (b *ReadBridge) OnAllDataRead() {
	b.pendingDone.Store(true)
	b.replayPending()
}

// OnError reports a container-detected failure. Same deferral rules as
// OnAllDataRead; read-hook failures funnel through here as well.
func (b *ReadBridge) OnError(err error) {
	b.pendingErr.set(err)
	b.replayPending()
}

// drain pulls buffers while demand lasts and the machine stays in
// rsReading. Stops on exhausted demand, a dry source, end of input
// (latches pendingDone), or a read failure (latches pendingErr).
func (b *ReadBridge) drain() {
	for b.demand.get() > 0 && b.state.load() == rsReading {
		buf, err := b.src.Read()
		if err != nil {
			if api.EndOfInput(err) {
				b.pendingDone.Store(true)
			} else {
				b.pendingErr.set(errors.Wrap(err, "read"))
			}
			return
		}
		if buf == nil {
			return
		}
		if len(buf.Bytes()) == 0 {
			buf.Release()
			continue
		}
		if b.state.load() != rsReading {
			// Cancelled mid-loop; the buffer never reached the consumer.
			buf.Release()
			return
		}
		b.demand.dec()
		b.delivered.Add(1)
		// OnNext may re-enter Request or Cancel synchronously; both are
		// absorbed by the loop conditions above.
		b.sub.OnNext(buf)
	}
}

// exitReadLoop leaves rsReading. With demand remaining or a terminal
// latched it re-enters rsDemand directly (no readiness probe: the loop
// itself just observed the source). With nothing left to do it parks in
// rsNoDemand, then re-checks for demand that slipped in concurrently.
func (b *ReadBridge) exitReadLoop() {
	if b.pendingDone.Load() || b.pendingErr.get() != nil || b.demand.get() > 0 {
		if b.state.cas(rsReading, rsDemand) {
			b.replayPending()
		}
		return
	}
	b.src.ReadingPaused()
	if b.state.cas(rsReading, rsNoDemand) {
		b.replayPending()
		if b.demand.get() > 0 {
			b.toDemand(rsNoDemand)
		}
	}
}

// toDemand enters rsDemand from the given state and probes the source for
// readability. Arriving from the read loop skips the probe.
func (b *ReadBridge) toDemand(from readState) {
	if b.state.cas(from, rsDemand) && from != rsReading {
		b.src.CheckAvailable()
	}
}

// replayPending delivers a latched terminal once the machine sits in a
// delivery-capable state. An error wins over completion when both are
// latched. The CAS into rsCompleted picks exactly one winner.
func (b *ReadBridge) replayPending() {
	for {
		st := b.state.load()
		if st != rsNoDemand && st != rsDemand {
			return
		}
		if err := b.pendingErr.get(); err != nil {
			if b.state.cas(st, rsCompleted) {
				b.src.DiscardData()
				b.sub.OnError(err)
				return
			}
			continue
		}
		if !b.pendingDone.Load() {
			return
		}
		if b.state.cas(st, rsCompleted) {
			b.sub.OnComplete()
			return
		}
	}
}

func (b *ReadBridge) request(n uint64) {
	if n == 0 {
		b.OnError(errors.WithMessage(api.ErrInvalidDemand, "request must be positive"))
		return
	}
	b.demand.add(n)
	for {
		switch st := b.state.load(); st {
		case rsSubscribing, rsReading:
			// Recorded. The subscribe epilogue or the loop exit path
			// re-checks demand before parking.
			return
		case rsNoDemand:
			if b.state.cas(rsNoDemand, rsDemand) {
				b.src.CheckAvailable()
				return
			}
		case rsDemand:
			// Already in demand: probe again. An earlier notification
			// may have been consumed by a loop that ran out of demand
			// before reaching this data.
			b.src.CheckAvailable()
			return
		default:
			return
		}
	}
}

// cancel moves straight to rsCompleted, discards buffered input, and
// bypasses pending replay. No signal reaches the consumer afterwards.
func (b *ReadBridge) cancel() {
	for {
		st := b.state.load()
		if st == rsCompleted {
			return
		}
		if b.state.cas(st, rsCompleted) {
			b.src.DiscardData()
			return
		}
	}
}

type readSubscription struct{ b *ReadBridge }

func (s readSubscription) Request(n uint64) { s.b.request(n) }
func (s readSubscription) Cancel()          { s.b.cancel() }
