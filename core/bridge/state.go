// File: core/bridge/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared state-machine primitives. Each bridge declares its own closed
// state enumeration over int32 and drives it through a cell.

package bridge

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
)

// cell is the atomic holder for one bridge's lifecycle state.
type cell[S ~int32] struct {
	v atomic.Int32
}

func (c *cell[S]) load() S   { return S(c.v.Load()) }
func (c *cell[S]) store(s S) { c.v.Store(int32(s)) }

// cas transitions from old to new. A false return means a concurrent
// transition won; callers re-read and decide against the current state.
func (c *cell[S]) cas(old, new S) bool {
	return c.v.CompareAndSwap(int32(old), int32(new))
}

type errBox struct{ err error }

// errSlot latches the first non-nil error reported to a machine. Later
// errors are dropped so terminal delivery stays exactly-once.
type errSlot struct {
	p atomic.Pointer[errBox]
}

func (s *errSlot) set(err error) bool {
	if err == nil {
		return false
	}
	return s.p.CompareAndSwap(nil, &errBox{err: err})
}

func (s *errSlot) get() error {
	if b := s.p.Load(); b != nil {
		return b.err
	}
	return nil
}

type bufBox struct{ buf api.Buffer }

// bufSlot holds at most one in-flight buffer. take is the exactly-once
// ownership claim: whoever swaps the box out releases or discards it.
type bufSlot struct {
	p atomic.Pointer[bufBox]
}

func (s *bufSlot) put(buf api.Buffer) { s.p.Store(&bufBox{buf: buf}) }

func (s *bufSlot) take() api.Buffer {
	if b := s.p.Swap(nil); b != nil {
		return b.buf
	}
	return nil
}

func (s *bufSlot) peek() api.Buffer {
	if b := s.p.Load(); b != nil {
		return b.buf
	}
	return nil
}

type subBox struct{ sub api.Subscription }

type handleBox struct{ h api.CompletionHandle }

// inertSubscription satisfies subscribers rejected by single-use
// publishers before the terminal OnError reaches them.
type inertSubscription struct{}

func (inertSubscription) Request(uint64) {}
func (inertSubscription) Cancel()        {}

// inertHandle satisfies observers rejected by single-use completion
// publishers.
type inertHandle struct{}

func (inertHandle) Cancel() {}
