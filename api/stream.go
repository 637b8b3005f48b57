// File: api/stream.go
// Package api defines the demand-driven streaming contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The Publisher/Subscriber pair follows the reactive-streams discipline:
// items flow only against outstanding demand, signals to one Subscriber are
// serial, and a terminal signal (OnError/OnComplete) is final. Request and
// Cancel may be invoked from any goroutine, including synchronously from
// inside a signal the Publisher is currently delivering.

package api

import "math"

// Unbounded is the demand value that switches a stream to unbounded mode.
// Once granted, per-item demand accounting is disabled for the stream.
const Unbounded uint64 = math.MaxUint64

// Subscription is the downstream's capability to pull items or abort.
// It becomes inert after Cancel or after a terminal signal.
type Subscription interface {
	// Request grants n more items of demand. n must be positive;
	// a zero request is a protocol violation reported via OnError.
	Request(n uint64)

	// Cancel tears the stream down. Idempotent; no signal reaches the
	// Subscriber after Cancel returns, even under concurrent delivery.
	Cancel()
}

// Subscriber consumes items and terminal signals from a Publisher.
type Subscriber[T any] interface {
	// OnSubscribe hands over the Subscription. Called exactly once,
	// before any other signal.
	OnSubscribe(s Subscription)

	// OnNext delivers one item. Ownership of releasable items transfers
	// to the Subscriber.
	OnNext(item T)

	// OnError signals abnormal termination. Terminal.
	OnError(err error)

	// OnComplete signals successful termination. Terminal.
	OnComplete()
}

// Publisher emits items to a single Subscriber under explicit demand.
// Implementations in this library are single-use: one Subscribe per
// instance; a second Subscribe is rejected through OnError.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}
