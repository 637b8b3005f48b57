// File: core/bridge/demand.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
)

// demand is the outstanding-request accumulator. It saturates at
// api.Unbounded; once unbounded it stays unbounded and per-item
// decrements become no-ops.
type demand struct {
	v atomic.Uint64
}

// add grants n more units and returns the new total.
func (d *demand) add(n uint64) uint64 {
	for {
		cur := d.v.Load()
		if cur == api.Unbounded {
			return cur
		}
		next := cur + n
		if next < cur {
			next = api.Unbounded
		}
		if d.v.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// dec consumes one unit after a delivery. No-op at zero and in
// unbounded mode.
func (d *demand) dec() {
	for {
		cur := d.v.Load()
		if cur == 0 || cur == api.Unbounded {
			return
		}
		if d.v.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (d *demand) get() uint64 { return d.v.Load() }

// take drains the counter and returns what was outstanding.
func (d *demand) take() uint64 { return d.v.Swap(0) }
