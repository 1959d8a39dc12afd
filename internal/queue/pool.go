package queue

import "sync"

// BufferPool provides pooled byte slices to avoid hot-path allocations for
// driver payloads. Uses size-bucketed pools (64B, 256B, 4KB, 64KB) sized
// for typical telemetry record payloads rather than block-storage-sized
// buffers.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.

// Buffer size thresholds
const (
	size64b  = 64
	size256b = 256
	size4k   = 4 * 1024
	size64k  = 64 * 1024
)

// globalPool is the shared buffer pool for every driver using
// DefaultAllocator.
var globalPool = struct {
	pool64b  sync.Pool
	pool256b sync.Pool
	pool4k   sync.Pool
	pool64k  sync.Pool
}{
	pool64b:  sync.Pool{New: func() any { b := make([]byte, size64b); return &b }},
	pool256b: sync.Pool{New: func() any { b := make([]byte, size256b); return &b }},
	pool4k:   sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool64k:  sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// GetBuffer returns a pooled buffer of at least the requested size.
// Caller must call PutBuffer when done.
func GetBuffer(size uint32) []byte {
	switch {
	case size <= size64b:
		return (*globalPool.pool64b.Get().(*[]byte))[:size]
	case size <= size256b:
		return (*globalPool.pool256b.Get().(*[]byte))[:size]
	case size <= size4k:
		return (*globalPool.pool4k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*globalPool.pool64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer to the pool.
// The buffer's capacity determines which pool it goes to.
func PutBuffer(buf []byte) {
	c := cap(buf)
	// Restore full capacity before returning to pool
	buf = buf[:c]
	switch c {
	case size64b:
		globalPool.pool64b.Put(&buf)
	case size256b:
		globalPool.pool256b.Put(&buf)
	case size4k:
		globalPool.pool4k.Put(&buf)
	case size64k:
		globalPool.pool64k.Put(&buf)
		// Buffers with non-standard capacity are not returned to pool
	}
}

// DefaultAllocator is a symmetric Alloc/Free pair so the core can release
// driver-produced payloads uniformly regardless of which driver produced
// them. Drivers with no special memory requirements (the bundled nop and
// file drivers included) use it instead of calling make([]byte, n)
// directly.
type DefaultAllocator struct{}

func (DefaultAllocator) Alloc(n int) []byte {
	return GetBuffer(uint32(n))
}

func (DefaultAllocator) Free(b []byte) {
	PutBuffer(b)
}
