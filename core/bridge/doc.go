// File: core/bridge/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package bridge adapts listener-driven, non-blocking I/O surfaces into
// demand-driven streams and back.
//
// Five machines cooperate here:
//
//   - ReadBridge turns a pollable ReadableSource into a Publisher of
//     buffers that honors subscriber demand.
//   - WriteBridge consumes a Publisher of buffers into a WritableSink,
//     one buffer in flight at a time, and reports the outcome through a
//     completion side.
//   - FlushBridge sequences a Publisher of Publishers, one WriteBridge
//     per nested stream, flushing the sink at every boundary.
//   - CompletionSignal is the single-fire outcome notifier the write
//     machines publish through.
//   - DeferredCommitOperator delays a commit side effect until the
//     source's first signal shows the stream is viable.
//
// All machines share one discipline: lifecycle lives in a single atomic
// state cell and every transition is a compare-and-swap. Entry points may
// be invoked from the consumer goroutine and from container notification
// goroutines at the same time, including recursively from inside a signal
// the machine is currently delivering, so no path ever takes a lock. A
// failed CAS always means a concurrent transition won; the operation is
// retried against the current state, never assumed.
package bridge
