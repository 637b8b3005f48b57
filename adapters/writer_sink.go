// File: adapters/writer_sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AsyncWriterSink adapts a blocking io.Writer into the pollable
// WritableSink contract. Writes stage copies on a lock-free ring; a
// flusher goroutine drains the ring into the writer. Writability follows
// a high/low watermark: the sink saturates when the ring fills and issues
// a single OnWritePossible once the flusher drains it to half capacity.

package adapters

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/concurrency"
)

const defaultPendingDepth = 16

var _ api.WritableSink = (*AsyncWriterSink)(nil)

// AsyncWriterSink stages buffer copies and writes them out of band. A
// failed write poisons the sink: the stored error returns from every
// later Write and reaches the bound bridge through OnError.
type AsyncWriterSink struct {
	w    io.Writer
	ring *concurrency.RingBuffer[[]byte]
	low  int

	kick        chan struct{}
	done        chan struct{}
	once        sync.Once
	flusherDone chan struct{}

	saturated atomic.Bool
	failOnce  sync.Once

	mu      sync.Mutex
	cb      api.WriteCallbacks
	failure error
}

// NewAsyncWriterSink starts the flusher over w. pendingDepth bounds the
// staged chunk count (rounded up to a power of two); zero picks the
// package default.
func NewAsyncWriterSink(w io.Writer, pendingDepth int) *AsyncWriterSink {
	if pendingDepth < 2 {
		pendingDepth = defaultPendingDepth
	}
	s := &AsyncWriterSink{
		w:           w,
		ring:        concurrency.NewRingBuffer[[]byte](uint64(pendingDepth)),
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		flusherDone: make(chan struct{}),
	}
	s.low = s.ring.Cap() / 2
	if s.low < 1 {
		s.low = 1
	}
	go s.flusher()
	return s
}

// Bind wires the bridge's write callbacks into the sink.
func (s *AsyncWriterSink) Bind(cb api.WriteCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *AsyncWriterSink) callbacks() api.WriteCallbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

func (s *AsyncWriterSink) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// fail poisons the sink; notify routes the error to the bound bridge for
// container-detected failures (bridge-reported ones already know).
func (s *AsyncWriterSink) fail(err error, notify bool) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.failure = err
		cb := s.cb
		s.mu.Unlock()
		s.drainStaged()
		if notify && cb != nil {
			cb.OnError(err)
		}
	})
}

func (s *AsyncWriterSink) drainStaged() {
	for {
		if _, ok := s.ring.Dequeue(); !ok {
			return
		}
	}
}

func (s *AsyncWriterSink) IsWritePossible() bool {
	return s.err() == nil && !s.saturated.Load()
}

// Write stages a copy of buf. A full ring consumes nothing and reports
// fullyWritten false; the bridge re-offers the buffer after the next
// OnWritePossible.
func (s *AsyncWriterSink) Write(buf api.Buffer) (bool, error) {
	if err := s.err(); err != nil {
		return false, err
	}
	data := buf.Copy()
	if len(data) == 0 {
		return true, nil
	}
	if !s.ring.Enqueue(data) {
		s.saturated.Store(true)
		s.kickFlusher()
		return false, nil
	}
	if s.ring.Len() >= s.ring.Cap() {
		s.saturated.Store(true)
	}
	s.kickFlusher()
	return true, nil
}

func (s *AsyncWriterSink) kickFlusher() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *AsyncWriterSink) WritingPaused() {}

// WritingComplete nudges the flusher; Close performs the final drain.
func (s *AsyncWriterSink) WritingComplete() {
	s.kickFlusher()
}

// WritingFailed poisons the sink without echoing the error back to the
// bridge that reported it.
func (s *AsyncWriterSink) WritingFailed(err error) {
	s.fail(err, false)
}

// DiscardData drops the staged backlog; the abandoned buffer itself stays
// with the bridge.
func (s *AsyncWriterSink) DiscardData(api.Buffer) {
	s.drainStaged()
}

func (s *AsyncWriterSink) flusher() {
	defer close(s.flusherDone)
	for {
		data, ok := s.ring.Dequeue()
		if ok {
			s.writeOut(data)
			continue
		}
		// An empty wake still re-checks the watermark: the saturation
		// store can land after this goroutine already drained the ring,
		// and the kick that follows it is the only signal left.
		s.maybeResume()
		select {
		case <-s.kick:
		case <-s.done:
			for {
				data, ok := s.ring.Dequeue()
				if !ok {
					return
				}
				s.writeOut(data)
			}
		}
	}
}

func (s *AsyncWriterSink) writeOut(data []byte) {
	if s.err() != nil {
		return
	}
	if _, err := s.w.Write(data); err != nil {
		s.fail(errors.Wrap(err, "async writer"), true)
		return
	}
	s.maybeResume()
}

// maybeResume lifts saturation once the backlog is at or below the low
// watermark, reporting writability exactly once per saturation episode.
func (s *AsyncWriterSink) maybeResume() {
	if s.err() != nil || !s.saturated.Load() || s.ring.Len() > s.low {
		return
	}
	if s.saturated.CompareAndSwap(true, false) {
		if cb := s.callbacks(); cb != nil {
			cb.OnWritePossible()
		}
	}
}

// Close drains the staged backlog, stops the flusher, and closes the
// underlying writer when it is an io.Closer.
func (s *AsyncWriterSink) Close() error {
	s.once.Do(func() { close(s.done) })
	s.kickFlusher()
	<-s.flusherDone
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return s.err()
}
