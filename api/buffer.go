// Package api
// Author: momentics
//
// Releasable payload chunks and pooling for high-performance streaming IO.
//
// Buffers carry the bytes that flow through the bridges. Ownership moves
// with the buffer: exactly one holder at a time, and that holder must call
// Release exactly once when the bytes will no longer be read.

package api

// Buffer describes a resliceable, releasable memory region.
type Buffer interface {
    // Bytes returns an immutable view of the current buffer data.
    Bytes() []byte

    // Slice produces a sub-buffer in O(1), memory-safe fashion.
    // The sub-buffer shares the parent's backing region and release slot.
    Slice(from, to int) Buffer

    // Release returns the buffer (and underlying region) to its pool.
    // After Release, buffer must not be used. Calling Release twice is a
    // bug that pools surface through Stats rather than a panic.
    Release()

    // Copy returns a deep copy of buffer contents as a standalone []byte.
    Copy() []byte
}

// BufferPool abstracts memory region management for buffers.
type BufferPool interface {
    // Get returns a buffer sized at least 'size' bytes.
    Get(size int) Buffer

    // Put returns buffer to pool; buffer must not be used afterwards.
    Put(b Buffer)

    // Stats exposes resource/accounting metrics for observability.
    Stats() BufferPoolStats
}

// BufferPoolStats aggregates buffer allocation/reuse/leak stats.
type BufferPoolStats struct {
    TotalAlloc   int64
    TotalFree    int64
    InUse        int64
    DoubleFrees  int64
}
