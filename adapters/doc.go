// File: adapters/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package adapters turns ordinary Go I/O endpoints into the pollable
// collaborators the bridges consume: blocking io.Reader/io.Writer values
// behind pump and flush goroutines, non-blocking socket descriptors
// behind a reactor-fed readiness dispatcher, and a resume notifier that
// coalesces cross-goroutine wakeups onto one event loop.
package adapters
