// File: api/completion.go
// Package api defines the single-fire completion contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A CompletionPublisher carries no items, only the terminal outcome of one
// write operation. It supports exactly one observer; terminal signals that
// arrive before the observer attaches are latched and replayed on attach.

package api

// CompletionHandle is the observer's capability to abandon the operation.
type CompletionHandle interface {
	// Cancel abandons interest in the outcome. Idempotent. The owning
	// bridge's cancellation hook runs at most once.
	Cancel()
}

// CompletionObserver receives the terminal outcome of an operation.
type CompletionObserver interface {
	// OnSubscribe hands over the handle. Called exactly once, before
	// any terminal signal.
	OnSubscribe(h CompletionHandle)

	// OnComplete reports success. Terminal.
	OnComplete()

	// OnError reports failure. Terminal.
	OnError(err error)
}

// CompletionPublisher is the observable side of a write operation.
type CompletionPublisher interface {
	// Subscribe attaches the single observer. A second Subscribe is a
	// protocol violation reported through the observer's OnError.
	Subscribe(obs CompletionObserver)
}

// WriteProcessor consumes a stream of buffers, drives them into a
// non-blocking sink, and publishes the operation outcome. It is the shape
// FlushableSink.CreateWriteProcessor returns, and what WriteBridge
// implements.
type WriteProcessor interface {
	Subscriber[Buffer]
	CompletionPublisher
	WriteCallbacks

	// Cancel aborts the processor: the in-flight buffer (if any) is
	// discarded and released, and the upstream subscription is canceled.
	Cancel()
}
