// File: pool/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

var (
	defaultOnce sync.Once
	defaultPool *BufferPool
)

// Default returns a process-wide BufferPool with the default classes, so
// components that take no explicit pool still share one freelist.
func Default() *BufferPool {
	defaultOnce.Do(func() {
		defaultPool = NewBufferPool(nil, 0)
	})
	return defaultPool
}
