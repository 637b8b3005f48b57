// File: adapters/reader_source.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AsyncReaderSource adapts a blocking io.Reader into the pollable
// ReadableSource contract. A pump goroutine performs the blocking reads
// into pooled buffers and parks them on a bounded inbox; the inbox depth
// is the only read-ahead the adapter performs, so a slow consumer
// backpressures the pump through the channel.

package adapters

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/pool"
)

const (
	defaultChunkSize  = 4096
	defaultInboxDepth = 8
)

var _ api.ReadableSource = (*AsyncReaderSource)(nil)

// AsyncReaderSource pulls from a blocking reader on a pump goroutine and
// replays the chunks through the non-blocking Read hook. End of input and
// read failures surface through Read once the inbox drains.
type AsyncReaderSource struct {
	r     io.Reader
	pool  api.BufferPool
	chunk int

	inbox chan api.Buffer
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	cb       api.ReadCallbacks
	armed    bool
	finished bool
	failure  error
}

// NewAsyncReaderSource starts the pump over r. Zero chunkSize and
// inboxDepth pick the package defaults; a nil bufs uses the process-wide
// buffer pool. Close the source (or the underlying reader) to stop the
// pump goroutine.
func NewAsyncReaderSource(r io.Reader, bufs api.BufferPool, chunkSize, inboxDepth int) *AsyncReaderSource {
	if bufs == nil {
		bufs = pool.Default()
	}
	if chunkSize < 1 {
		chunkSize = defaultChunkSize
	}
	if inboxDepth < 1 {
		inboxDepth = defaultInboxDepth
	}
	s := &AsyncReaderSource{
		r:     r,
		pool:  bufs,
		chunk: chunkSize,
		inbox: make(chan api.Buffer, inboxDepth),
		done:  make(chan struct{}),
	}
	go s.pump()
	return s
}

// Bind wires the bridge's re-entrant callbacks into the source. Wire it
// before handing the bridge to a consumer.
func (s *AsyncReaderSource) Bind(cb api.ReadCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *AsyncReaderSource) pump() {
	for {
		select {
		case <-s.done:
			s.finish(io.EOF)
			s.drainParked()
			return
		default:
		}
		buf := s.pool.Get(s.chunk)
		n, err := s.r.Read(buf.Bytes())
		if n > 0 {
			out := buf
			if n < len(buf.Bytes()) {
				out = buf.Slice(0, n)
			}
			select {
			case s.inbox <- out:
				s.notifyAvailable()
			case <-s.done:
				out.Release()
				s.finish(io.EOF)
				s.drainParked()
				return
			}
		} else {
			buf.Release()
		}
		if err != nil {
			select {
			case <-s.done:
				// Caller-initiated shutdown reads as clean end of input.
				err = io.EOF
			default:
			}
			if !api.EndOfInput(err) {
				err = errors.Wrap(err, "async reader")
			}
			s.finish(err)
			return
		}
	}
}

// finish latches the terminal outcome, closes the inbox, and wakes the
// bridge so Read can surface what remains.
func (s *AsyncReaderSource) finish(err error) {
	s.mu.Lock()
	s.finished = true
	s.failure = err
	s.mu.Unlock()
	close(s.inbox)
	s.notifyAvailable()
}

// drainParked releases every chunk still parked in the inbox. Only the
// pump calls it, after finish has closed the inbox, so the range always
// terminates even when a consumer drains concurrently.
func (s *AsyncReaderSource) drainParked() {
	for buf := range s.inbox {
		buf.Release()
	}
}

func (s *AsyncReaderSource) notifyAvailable() {
	s.mu.Lock()
	cb := s.cb
	fire := s.armed && cb != nil
	if fire {
		s.armed = false
	}
	s.mu.Unlock()
	if fire {
		cb.OnDataAvailable()
	}
}

// CheckAvailable arms readiness and answers synchronously when chunks or
// a terminal outcome already wait in the inbox.
func (s *AsyncReaderSource) CheckAvailable() {
	s.mu.Lock()
	s.armed = true
	var cb api.ReadCallbacks
	if (len(s.inbox) > 0 || s.finished) && s.cb != nil {
		s.armed = false
		cb = s.cb
	}
	s.mu.Unlock()
	if cb != nil {
		cb.OnDataAvailable()
	}
}

func (s *AsyncReaderSource) Read() (api.Buffer, error) {
	select {
	case buf, ok := <-s.inbox:
		if !ok {
			return nil, s.terminal()
		}
		return buf, nil
	default:
		s.mu.Lock()
		if s.finished && len(s.inbox) == 0 {
			err := s.failure
			s.mu.Unlock()
			return nil, err
		}
		s.armed = true
		s.mu.Unlock()
		return nil, nil
	}
}

func (s *AsyncReaderSource) terminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	return io.EOF
}

func (s *AsyncReaderSource) ReadingPaused() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
}

// DiscardData drops and releases every chunk still parked in the inbox.
func (s *AsyncReaderSource) DiscardData() {
	for {
		select {
		case buf, ok := <-s.inbox:
			if !ok {
				return
			}
			buf.Release()
		default:
			return
		}
	}
}

// Close stops the pump and closes the underlying reader when it is an
// io.Closer, unblocking any read in flight. Chunks still parked in the
// inbox go back to the pool as the pump exits.
func (s *AsyncReaderSource) Close() error {
	s.once.Do(func() { close(s.done) })
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
