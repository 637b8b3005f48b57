//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) backend. All descriptors are watched edge-triggered; an
// eventfd registered alongside them carries Wakeup nudges, consumed
// inside Poll so callers only ever see their own descriptors.

package reactor

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-streams/api"
)

var _ api.Reactor = (*epollReactor)(nil)

type epollReactor struct {
	epfd   int
	wakeFD int
	closed atomic.Bool

	// Poll scratch; Poll is meant for a single polling goroutine.
	scratch []unix.EpollEvent
}

// New creates an edge-triggered epoll reactor with an eventfd wakeup
// channel.
func New() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		unix.Close(wakeFD)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "register wakeup fd")
	}
	return &epollReactor{epfd: epfd, wakeFD: wakeFD}, nil
}

// Register adds fd to the watch set, edge-triggered for the given ops.
func (r *epollReactor) Register(fd int, ops api.Ops) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: epollMask(ops), Fd: int32(fd)}
	return errors.Wrapf(unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev), "epoll add fd %d", fd)
}

// Modify replaces the watched ops of a registered descriptor.
func (r *epollReactor) Modify(fd int, ops api.Ops) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: epollMask(ops), Fd: int32(fd)}
	return errors.Wrapf(unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev), "epoll mod fd %d", fd)
}

// Deregister removes fd from the watch set.
func (r *epollReactor) Deregister(fd int) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return errors.Wrapf(unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil), "epoll del fd %d", fd)
}

// Poll waits up to timeoutMs (negative blocks) and fills events. Wakeup
// nudges and signal interruptions return 0 without error.
func (r *epollReactor) Poll(events []api.Event, timeoutMs int) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(r.scratch) < len(events) {
		r.scratch = make([]unix.EpollEvent, len(events))
	}
	raw := r.scratch[:len(events)]

	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.Wrap(err, "epoll wait")
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == r.wakeFD {
			r.drainWakeup()
			continue
		}
		events[out] = api.Event{FD: fd, Ops: opsFromMask(raw[i].Events)}
		out++
	}
	return out, nil
}

// Wakeup interrupts a blocked Poll by bumping the eventfd counter.
func (r *epollReactor) Wakeup() error {
	if r.closed.Load() {
		return ErrClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(r.wakeFD, buf[:])
	if err == unix.EAGAIN {
		// Counter saturated; the poller is already due to wake.
		return nil
	}
	return errors.Wrap(err, "wakeup write")
}

// Close releases both descriptors. Callers stop the polling goroutine
// first; Close is idempotent.
func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	unix.Write(r.wakeFD, buf[:]) // nudge a straggling poller

	errWake := unix.Close(r.wakeFD)
	errEp := unix.Close(r.epfd)
	if errWake != nil {
		return errors.Wrap(errWake, "close wakeup fd")
	}
	return errors.Wrap(errEp, "close epoll fd")
}

func (r *epollReactor) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakeFD, buf[:]); err != nil {
			return
		}
	}
}

func epollMask(ops api.Ops) uint32 {
	mask := uint32(unix.EPOLLET)
	if ops.Readable() {
		mask |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ops.Writable() {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func opsFromMask(mask uint32) api.Ops {
	var ops api.Ops
	if mask&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		ops |= api.OpReadable
	}
	if mask&unix.EPOLLOUT != 0 {
		ops |= api.OpWritable
	}
	if mask&unix.EPOLLERR != 0 {
		ops |= api.OpError
	}
	if mask&unix.EPOLLHUP != 0 {
		ops |= api.OpHangup
	}
	return ops
}
