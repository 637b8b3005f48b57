//go:build linux

// File: adapters/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking socket endpoints. SocketSource and SocketSink speak the
// collaborator contracts directly over a descriptor, reading and writing
// until EAGAIN; readiness edges arrive through a ReadinessDispatcher via
// WatchSocket. The descriptor's lifecycle stays with the caller.

package adapters

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/pool"
)

var _ api.ReadableSource = (*SocketSource)(nil)

// SocketSource reads pooled chunks from a non-blocking descriptor. It
// keeps no internal buffering; the kernel socket buffer is the queue.
type SocketSource struct {
	fd    int
	pool  api.BufferPool
	chunk int

	mu sync.Mutex
	cb api.ReadCallbacks
}

// NewSocketSource wraps fd, switching it to non-blocking mode. A nil
// bufs uses the process-wide pool; zero chunkSize picks the default.
func NewSocketSource(fd int, bufs api.BufferPool, chunkSize int) (*SocketSource, error) {
	if bufs == nil {
		bufs = pool.Default()
	}
	if chunkSize < 1 {
		chunkSize = defaultChunkSize
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrap(err, "set nonblock")
	}
	return &SocketSource{fd: fd, pool: bufs, chunk: chunkSize}, nil
}

// Bind wires the bridge's re-entrant callbacks into the source.
func (s *SocketSource) Bind(cb api.ReadCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *SocketSource) callbacks() api.ReadCallbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

// CheckAvailable answers optimistically: with edge-triggered readiness
// the kernel buffer may hold data without a fresh edge, so the bridge is
// told to try a read. A dry read costs one EAGAIN and re-arms the edge.
func (s *SocketSource) CheckAvailable() {
	if cb := s.callbacks(); cb != nil {
		cb.OnDataAvailable()
	}
}

func (s *SocketSource) Read() (api.Buffer, error) {
	buf := s.pool.Get(s.chunk)
	region := buf.Bytes()
	for {
		n, err := unix.Read(s.fd, region)
		if n > 0 {
			if n == len(region) {
				return buf, nil
			}
			return buf.Slice(0, n), nil
		}
		if n == 0 && err == nil {
			buf.Release()
			return nil, io.EOF
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			buf.Release()
			return nil, nil
		default:
			buf.Release()
			return nil, errors.Wrap(err, "socket read")
		}
	}
}

func (s *SocketSource) ReadingPaused() {}

// DiscardData is a no-op: nothing is staged here, and the descriptor
// teardown flushes the kernel side.
func (s *SocketSource) DiscardData() {}

func (s *SocketSource) resumeReadable() {
	if cb := s.callbacks(); cb != nil {
		cb.OnDataAvailable()
	}
}

func (s *SocketSource) failed(err error) {
	if cb := s.callbacks(); cb != nil {
		cb.OnError(err)
	}
}

var _ api.WritableSink = (*SocketSink)(nil)

// SocketSink writes buffers to a non-blocking descriptor, tracking the
// consumed prefix of the in-flight buffer so a partial write resumes
// where it stopped when the bridge re-offers the same buffer.
type SocketSink struct {
	fd int

	writable atomic.Bool

	mu      sync.Mutex
	cb      api.WriteCallbacks
	offset  int
	failure error
}

// NewSocketSink wraps fd, switching it to non-blocking mode.
func NewSocketSink(fd int) (*SocketSink, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrap(err, "set nonblock")
	}
	s := &SocketSink{fd: fd}
	s.writable.Store(true)
	return s, nil
}

// Bind wires the bridge's write callbacks into the sink.
func (s *SocketSink) Bind(cb api.WriteCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *SocketSink) callbacks() api.WriteCallbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

func (s *SocketSink) IsWritePossible() bool {
	s.mu.Lock()
	failed := s.failure != nil
	s.mu.Unlock()
	return !failed && s.writable.Load()
}

func (s *SocketSink) Write(buf api.Buffer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return false, s.failure
	}
	data := buf.Bytes()
	for s.offset < len(data) {
		n, err := unix.Write(s.fd, data[s.offset:])
		if n > 0 {
			s.offset += n
			continue
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			s.writable.Store(false)
			return false, nil
		default:
			s.failure = errors.Wrap(err, "socket write")
			return false, s.failure
		}
	}
	s.offset = 0
	return true, nil
}

func (s *SocketSink) WritingPaused()   {}
func (s *SocketSink) WritingComplete() {}

func (s *SocketSink) WritingFailed(err error) {
	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	}
	s.mu.Unlock()
}

// DiscardData forgets the consumed prefix of an abandoned buffer.
func (s *SocketSink) DiscardData(api.Buffer) {
	s.mu.Lock()
	s.offset = 0
	s.mu.Unlock()
}

func (s *SocketSink) resumeWritable() {
	s.writable.Store(true)
	if cb := s.callbacks(); cb != nil {
		cb.OnWritePossible()
	}
}

func (s *SocketSink) failed(err error) {
	if cb := s.callbacks(); cb != nil {
		cb.OnError(err)
	}
}

// WatchSocket registers one descriptor's endpoints with the dispatcher.
// Either endpoint may be nil for a half-open socket.
func WatchSocket(d *ReadinessDispatcher, fd int, src *SocketSource, sink *SocketSink) error {
	target := ReadinessTarget{}
	if src != nil {
		target.OnReadable = src.resumeReadable
	}
	if sink != nil {
		target.OnWritable = sink.resumeWritable
	}
	target.OnFailure = func(err error) {
		if src != nil {
			src.failed(err)
		}
		if sink != nil {
			sink.failed(err)
		}
	}
	ops := api.Ops(0)
	if src != nil {
		ops |= api.OpReadable
	}
	if sink != nil {
		ops |= api.OpWritable
	}
	return d.Watch(fd, ops, target)
}
