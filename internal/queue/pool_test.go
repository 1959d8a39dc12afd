package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBuffer_SizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize uint32
		expectCap   int
	}{
		{"64B bucket - exact", 64, 64},
		{"64B bucket - smaller", 10, 64},
		{"256B bucket - exact", 256, 256},
		{"256B bucket - smaller", 200, 256},
		{"4KB bucket - exact", 4 * 1024, 4 * 1024},
		{"4KB bucket - smaller", 3 * 1024, 4 * 1024},
		{"64KB bucket - exact", 64 * 1024, 64 * 1024},
		{"64KB bucket - smaller", 40 * 1024, 64 * 1024},
		{"oversized falls through to plain make", 128 * 1024, 128 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetBuffer(tt.requestSize)
			require.Len(t, buf, int(tt.requestSize))
			require.Equal(t, tt.expectCap, cap(buf))
			PutBuffer(buf)
		})
	}
}

func TestBufferPool_Reuse(t *testing.T) {
	buf1 := GetBuffer(4 * 1024)
	ptr1 := &buf1[0]
	PutBuffer(buf1)

	buf2 := GetBuffer(4 * 1024)
	ptr2 := &buf2[0]
	PutBuffer(buf2)

	// sync.Pool may or may not reuse immediately; this just exercises the
	// path without asserting a specific GC behavior.
	t.Logf("reused: %v", ptr1 == ptr2)
}

func TestPutBuffer_NonStandardCap(t *testing.T) {
	buf := make([]byte, 100*1024)
	require.NotPanics(t, func() { PutBuffer(buf) })
}

func TestDefaultAllocator_RoundTrip(t *testing.T) {
	var alloc DefaultAllocator
	buf := alloc.Alloc(256)
	require.Len(t, buf, 256)
	require.NotPanics(t, func() { alloc.Free(buf) })
}

func BenchmarkGetBuffer_4KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := GetBuffer(4 * 1024)
		PutBuffer(buf)
	}
}

func BenchmarkGetBuffer_64KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := GetBuffer(64 * 1024)
		PutBuffer(buf)
	}
}

func BenchmarkMakeBuffer_4KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = make([]byte, 4*1024)
	}
}
