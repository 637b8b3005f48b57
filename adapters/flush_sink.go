// File: adapters/flush_sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FlushWriterSink layers the flush-boundary contract over a blocking
// io.Writer. Unit processors append into a pooled staging region; Flush
// pushes the staged bytes through the writer in one call. The staging
// slice comes from a BytePool and is reused across units.

package adapters

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/bridge"
	"github.com/momentics/hioload-streams/pool"
)

var _ api.FlushableSink = (*FlushWriterSink)(nil)

// FlushWriterSink stages unit output and flushes it at unit boundaries.
// A failed flush or write poisons the sink.
type FlushWriterSink struct {
	w     io.Writer
	bytes api.BytePool

	mu      sync.Mutex
	staged  []byte
	failure error
}

// NewFlushWriterSink wraps w. A nil bytes uses a default byte pool.
func NewFlushWriterSink(w io.Writer, bytes api.BytePool) *FlushWriterSink {
	if bytes == nil {
		bytes = pool.NewBytePool()
	}
	return &FlushWriterSink{w: w, bytes: bytes}
}

// CreateWriteProcessor builds a write bridge over this sink's staging
// area. One processor per unit; the flush bridge enforces that.
func (f *FlushWriterSink) CreateWriteProcessor() api.WriteProcessor {
	return bridge.NewWriteBridge(&flushStaging{f: f})
}

// Flush writes the staged bytes through the underlying writer. The write
// blocks, so a successful flush always clears the staging area.
func (f *FlushWriterSink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return f.failure
	}
	if len(f.staged) == 0 {
		return nil
	}
	if _, err := f.w.Write(f.staged); err != nil {
		f.failure = errors.Wrap(err, "flush writer")
		return f.failure
	}
	f.staged = f.staged[:0]
	return nil
}

func (f *FlushWriterSink) IsWritePossible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure == nil
}

func (f *FlushWriterSink) IsFlushPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.staged) > 0
}

// FlushingFailed releases the staging region; the bridge is tearing the
// stream down.
func (f *FlushWriterSink) FlushingFailed(err error) {
	f.mu.Lock()
	if f.failure == nil {
		f.failure = err
	}
	f.releaseStagedLocked()
	f.mu.Unlock()
}

// Close flushes what remains and closes the underlying writer when it is
// an io.Closer.
func (f *FlushWriterSink) Close() error {
	flushErr := f.Flush()
	f.mu.Lock()
	f.releaseStagedLocked()
	f.mu.Unlock()
	if c, ok := f.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrap(err, "close writer")
		}
	}
	return flushErr
}

func (f *FlushWriterSink) releaseStagedLocked() {
	if f.staged != nil {
		f.bytes.Release(f.staged)
		f.staged = nil
	}
}

// stageLocked appends p to the staging region, growing through the byte
// pool. Caller holds mu.
func (f *FlushWriterSink) stageLocked(p []byte) {
	old := len(f.staged)
	need := old + len(p)
	if cap(f.staged) < need {
		grown := f.bytes.Acquire(need)
		copy(grown, f.staged[:old])
		f.releaseStagedLocked()
		f.staged = grown
	} else {
		f.staged = f.staged[:need]
	}
	copy(f.staged[old:], p)
}

// flushStaging is the per-unit sink handed to write bridges: an
// always-writable surface that appends into the parent's staging region.
type flushStaging struct {
	f *FlushWriterSink
}

var _ api.WritableSink = (*flushStaging)(nil)

func (s *flushStaging) IsWritePossible() bool {
	return s.f.IsWritePossible()
}

func (s *flushStaging) Write(buf api.Buffer) (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.failure != nil {
		return false, s.f.failure
	}
	s.f.stageLocked(buf.Bytes())
	return true, nil
}

func (s *flushStaging) WritingPaused()   {}
func (s *flushStaging) WritingComplete() {}

func (s *flushStaging) WritingFailed(err error) {
	s.f.mu.Lock()
	if s.f.failure == nil {
		s.f.failure = err
	}
	s.f.mu.Unlock()
}

func (s *flushStaging) DiscardData(api.Buffer) {}
