// File: fake/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
)

var _ api.Buffer = (*Buffer)(nil)

// Buffer is a release-counting api.Buffer. Slices share the parent's
// counter, so a test can assert exactly-once release across views.
type Buffer struct {
	data     []byte
	releases *atomic.Int32
}

// NewBuffer wraps a copy of payload.
func NewBuffer(payload []byte) *Buffer {
	return &Buffer{
		data:     append([]byte(nil), payload...),
		releases: new(atomic.Int32),
	}
}

// NewStringBuffer wraps payload; handy for test scripts.
func NewStringBuffer(payload string) *Buffer {
	return &Buffer{data: []byte(payload), releases: new(atomic.Int32)}
}

func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Slice(from, to int) api.Buffer {
	return &Buffer{data: b.data[from:to], releases: b.releases}
}

func (b *Buffer) Release() { b.releases.Add(1) }

func (b *Buffer) Copy() []byte { return append([]byte(nil), b.data...) }

// Releases reports how many times Release ran across all views.
func (b *Buffer) Releases() int { return int(b.releases.Load()) }

// Released reports whether the buffer was released at least once.
func (b *Buffer) Released() bool { return b.releases.Load() > 0 }
