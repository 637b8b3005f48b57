// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BytePool recycles raw []byte regions through per-class SyncPools.
// Unlike BufferPool it carries no release accounting; it serves staging
// areas whose lifetime the caller fully controls.

package pool

import (
	"sort"

	"github.com/momentics/hioload-streams/api"
)

var _ api.BytePool = (*BytePool)(nil)

// BytePool hands out []byte regions by size class.
type BytePool struct {
	classes []int
	pools   []*SyncPool[*[]byte]
}

// NewBytePool builds a byte pool over the given class sizes; empty means
// the default classes.
func NewBytePool(classSizes ...int) *BytePool {
	if len(classSizes) == 0 {
		classSizes = DefaultClassSizes
	}
	sizes := append([]int(nil), classSizes...)
	sort.Ints(sizes)
	bp := &BytePool{classes: sizes}
	for _, size := range sizes {
		sz := size
		bp.pools = append(bp.pools, NewSyncPool(func() *[]byte {
			b := make([]byte, sz)
			return &b
		}))
	}
	return bp
}

// Acquire returns a slice of exactly n bytes with class-sized capacity.
// Requests above the largest class fall back to a plain allocation.
func (b *BytePool) Acquire(n int) []byte {
	for i, size := range b.classes {
		if size >= n {
			buf := *b.pools[i].Get()
			return buf[:n]
		}
	}
	return make([]byte, n)
}

// Release returns a slice to the largest class its capacity can serve.
// Slices smaller than the smallest class are dropped.
func (b *BytePool) Release(buf []byte) {
	c := cap(buf)
	for i := len(b.classes) - 1; i >= 0; i-- {
		if b.classes[i] <= c {
			full := buf[:b.classes[i]]
			b.pools[i].Put(&full)
			return
		}
	}
}
