// File: api/sink.go
// Package api defines the writable collaborator contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A WritableSink wraps a host container's non-blocking write surface. The
// bridge hands it exactly one buffer at a time and never blocks: a write
// either consumes the whole buffer, consumes part of it, or fails. Renewed
// writability flows back through the WriteCallbacks entry points.

package api

// WritableSink is the pollable output surface driven by a write bridge.
type WritableSink interface {
	// IsWritePossible reports whether Write would currently make progress.
	// Used by the bridge to start a write cycle without waiting for an
	// OnWritePossible callback that may never come.
	IsWritePossible() bool

	// Write pushes the buffer toward the sink without blocking.
	// fullyWritten == true means the sink is done with the buffer and the
	// caller may release it. fullyWritten == false means the sink consumed
	// a prefix; the caller must offer the same buffer again after the next
	// OnWritePossible. A non-nil error is an I/O failure.
	Write(buf Buffer) (fullyWritten bool, err error)

	// WritingPaused notifies that the bridge is about to request the next
	// buffer from its upstream. Hosts that meter their write readiness
	// suspend notifications here; most implementations ignore it.
	WritingPaused()

	// WritingComplete notifies that the stream drained successfully and no
	// further Write calls will follow.
	WritingComplete()

	// WritingFailed notifies that a Write call failed. The sink should tear
	// down its output side; the bridge forwards err to its observer.
	WritingFailed(err error)

	// DiscardData hands back a buffer the bridge is abandoning mid-stream
	// (cancellation or error). Ownership stays with the bridge; the sink
	// must not retain buf past this call.
	DiscardData(buf Buffer)
}

// FlushableSink is the collaborator contract for flush-boundary streaming:
// a stream of per-unit buffer streams, with a forced flush after each unit.
type FlushableSink interface {
	// CreateWriteProcessor builds the per-unit write processor wired to
	// this sink's staging area.
	CreateWriteProcessor() WriteProcessor

	// Flush forces staged output toward the underlying sink. May leave the
	// flush incomplete; the bridge detects that through IsFlushPending.
	Flush() error

	// IsWritePossible reports whether a pending flush could proceed now.
	IsWritePossible() bool

	// IsFlushPending reports whether staged output still awaits a flush.
	IsFlushPending() bool

	// FlushingFailed notifies that a Flush call failed. The bridge cancels
	// the stream and forwards err after invoking this hook.
	FlushingFailed(err error)
}

// WriteCallbacks are the re-entrant entry points a write bridge exposes to
// the host container. Safe to invoke from any goroutine at any time,
// including synchronously from inside a sink hook.
type WriteCallbacks interface {
	// OnWritePossible signals that the sink can accept more output.
	OnWritePossible()

	// OnError reports a container-detected failure. Delivery is deferred
	// while a write is in flight and replayed when it finishes.
	OnError(err error)
}
