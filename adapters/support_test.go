// File: adapters/support_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared doubles for the adapter tests. Callback recorders are
// channel-backed because adapters fire hooks from their own goroutines.

package adapters_test

import (
	"sync"
	"testing"
	"time"
)

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", msg)
}

// syncWriter is a mutex-guarded growing sink.
type syncWriter struct {
	mu  sync.Mutex
	buf []byte
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

// gatedWriter blocks each Write until the gate is fed once.
type gatedWriter struct {
	inner *syncWriter
	gate  chan struct{}
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{inner: &syncWriter{}, gate: make(chan struct{})}
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	<-w.gate
	return w.inner.Write(p)
}

// errWriter fails every write with err.
type errWriter struct{ err error }

func (w *errWriter) Write([]byte) (int, error) { return 0, w.err }

// errReader fails every read with err.
type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

// readCallbackRecorder counts read-side hook invocations.
type readCallbackRecorder struct {
	mu        sync.Mutex
	available int
	allRead   int
	errs      []error
}

func (r *readCallbackRecorder) OnDataAvailable() {
	r.mu.Lock()
	r.available++
	r.mu.Unlock()
}

func (r *readCallbackRecorder) OnAllDataRead() {
	r.mu.Lock()
	r.allRead++
	r.mu.Unlock()
}

func (r *readCallbackRecorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *readCallbackRecorder) availableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// writeCallbackRecorder counts write-side hook invocations.
type writeCallbackRecorder struct {
	mu       sync.Mutex
	possible int
	errs     []error
}

func (r *writeCallbackRecorder) OnWritePossible() {
	r.mu.Lock()
	r.possible++
	r.mu.Unlock()
}

func (r *writeCallbackRecorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *writeCallbackRecorder) possibleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.possible
}

func (r *writeCallbackRecorder) firstErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[0]
}
