// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pooled api.Buffer implementation. Every view produced by Slice shares
// the root region's release slot, so the region goes back to its
// freelist exactly once no matter which view releases it.

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
)

var _ api.Buffer = (*Buffer)(nil)

// Buffer is a view over a pooled byte region.
type Buffer struct {
	data  []byte
	root  []byte
	class int // -1 for oversized one-off regions
	pool  *BufferPool
	state *releaseState
}

// releaseState is shared by every view of one root region.
type releaseState struct {
	released atomic.Bool
}

// Bytes returns the current view of the region.
func (b *Buffer) Bytes() []byte { return b.data }

// Slice produces a sub-view sharing the backing region and release slot.
func (b *Buffer) Slice(from, to int) api.Buffer {
	return &Buffer{
		data:  b.data[from:to],
		root:  b.root,
		class: b.class,
		pool:  b.pool,
		state: b.state,
	}
}

// Release returns the root region to the pool. The first call across all
// views wins; later calls are counted as double frees in the pool stats.
func (b *Buffer) Release() {
	if !b.state.released.CompareAndSwap(false, true) {
		b.pool.doubleFrees.Add(1)
		return
	}
	b.pool.recycle(b.root, b.class)
}

// Copy returns an independent copy of the view's contents.
func (b *Buffer) Copy() []byte {
	return append([]byte(nil), b.data...)
}
