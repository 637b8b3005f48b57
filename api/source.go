// File: api/source.go
// Package api defines the readable collaborator contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A ReadableSource wraps a host container's non-blocking read surface.
// The bridge never blocks on it: Read either yields a buffer immediately,
// reports that nothing is available right now, or reports end of input.
// Readiness flows the other way, through the ReadCallbacks entry points
// the source invokes on the bridge.

package api

import "io"

// ReadableSource is the pollable input surface consumed by a read bridge.
type ReadableSource interface {
	// CheckAvailable asks the source to determine readability. The source
	// answers by invoking OnDataAvailable on its registered callbacks,
	// either synchronously from inside this call or later from its own
	// notification goroutine.
	CheckAvailable()

	// Read pulls at most one buffer without blocking.
	//   (buf, nil)     data; ownership of buf transfers to the caller.
	//   (nil, nil)     nothing available right now.
	//   (nil, io.EOF)  end of input, no further data will arrive.
	// Any other error is an I/O failure. A (nil, nil) result re-arms
	// readiness: the source invokes OnDataAvailable when data arrives
	// next, without another CheckAvailable.
	Read() (Buffer, error)

	// ReadingPaused notifies that the bridge stopped pulling because
	// demand is exhausted. The source should suspend readiness
	// notifications until the next CheckAvailable.
	ReadingPaused()

	// DiscardData drops any internally buffered input. Invoked on
	// cancellation and on error teardown.
	DiscardData()
}

// EndOfInput reports whether a Read error means exhausted input rather
// than failure.
func EndOfInput(err error) bool { return err == io.EOF }

// ReadCallbacks are the re-entrant entry points a read bridge exposes to
// the host container. Safe to invoke from any goroutine at any time,
// including synchronously from inside a ReadableSource hook.
type ReadCallbacks interface {
	// OnDataAvailable signals that Read would currently yield data.
	OnDataAvailable()

	// OnAllDataRead signals that input ended cleanly. May arrive while
	// a read loop is running; delivery is deferred until the loop exits.
	OnAllDataRead()

	// OnError reports a container-detected failure. Same deferral rules
	// as OnAllDataRead.
	OnError(err error)
}
