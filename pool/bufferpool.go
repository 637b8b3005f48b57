// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BufferPool hands out releasable buffers from per-size-class channel
// freelists. Requests above the largest class get one-off regions that
// are tracked but never retained.

package pool

import (
	"sort"
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
)

// DefaultClassSizes are the freelist size classes used when none are
// configured.
var DefaultClassSizes = []int{256, 1024, 4096, 16384, 65536}

// DefaultClassDepth is the per-class freelist capacity used when none is
// configured.
const DefaultClassDepth = 1024

var _ api.BufferPool = (*BufferPool)(nil)

type sizeClass struct {
	size int
	free chan []byte
}

// BufferPool implements api.BufferPool over size-class freelists.
type BufferPool struct {
	classes []sizeClass

	totalAlloc  atomic.Int64
	totalFree   atomic.Int64
	doubleFrees atomic.Int64
}

// NewBufferPool builds a pool with the given ascending class sizes and
// per-class freelist depth. Zero values select the defaults.
func NewBufferPool(classSizes []int, depth int) *BufferPool {
	if len(classSizes) == 0 {
		classSizes = DefaultClassSizes
	}
	if depth <= 0 {
		depth = DefaultClassDepth
	}
	sizes := append([]int(nil), classSizes...)
	sort.Ints(sizes)
	p := &BufferPool{classes: make([]sizeClass, 0, len(sizes))}
	for _, size := range sizes {
		if size < 1 {
			continue
		}
		p.classes = append(p.classes, sizeClass{
			size: size,
			free: make(chan []byte, depth),
		})
	}
	return p
}

// Get returns a buffer of exactly size bytes, backed by a region of at
// least that capacity. Contents are not zeroed; callers overwrite.
func (p *BufferPool) Get(size int) api.Buffer {
	if size < 0 {
		size = 0
	}
	p.totalAlloc.Add(1)
	ci := p.classFor(size)
	if ci < 0 {
		region := make([]byte, size)
		return &Buffer{data: region, root: region, class: -1, pool: p, state: &releaseState{}}
	}
	var region []byte
	select {
	case region = <-p.classes[ci].free:
	default:
		region = make([]byte, p.classes[ci].size)
	}
	return &Buffer{data: region[:size], root: region, class: ci, pool: p, state: &releaseState{}}
}

// Put returns a buffer through its own release path; equivalent to
// calling Release on the buffer.
func (p *BufferPool) Put(b api.Buffer) {
	if b == nil {
		return
	}
	b.Release()
}

// Stats reports allocation accounting. InUse counts buffers handed out
// and not yet released; a steadily growing value is a leak.
func (p *BufferPool) Stats() api.BufferPoolStats {
	alloc := p.totalAlloc.Load()
	free := p.totalFree.Load()
	return api.BufferPoolStats{
		TotalAlloc:  alloc,
		TotalFree:   free,
		InUse:       alloc - free,
		DoubleFrees: p.doubleFrees.Load(),
	}
}

// classFor returns the smallest class that fits size, or -1.
func (p *BufferPool) classFor(size int) int {
	for i := range p.classes {
		if p.classes[i].size >= size {
			return i
		}
	}
	return -1
}

// recycle accepts a released root region. A full freelist drops the
// region for the collector.
func (p *BufferPool) recycle(root []byte, class int) {
	p.totalFree.Add(1)
	if class < 0 || class >= len(p.classes) {
		return
	}
	select {
	case p.classes[class].free <- root:
	default:
	}
}
