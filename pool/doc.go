// Package pool
// Author: momentics <momentics@gmail.com>
//
// Releasable buffers over size-class freelists for streaming IO.
// Buffers are handed out by a BufferPool and returned by Release; the
// pool keeps exactly-once accounting so leaks and double releases
// surface in Stats instead of corrupting reuse. BytePool and SyncPool
// cover raw []byte staging and generic object reuse.
package pool
