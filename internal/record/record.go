// Package record defines the in-flight record object the I/O loop hands to
// queues, and the refcounted envelope that lets one record reach N queues
// without copying its payload.
package record

import (
	"sync/atomic"
	"time"
)

// Record is one timestamped, typed payload emitted by a driver.
type Record struct {
	Seqno     uint64
	DataID    uint32
	DevID     uint32
	Timestamp time.Time
	Payload   []byte
}

// FreeFunc releases a payload back to whichever allocator produced it.
// Supplied by the driver that emitted the record, so the coupling between
// a driver and its allocator stays an explicit capability rather than a
// hidden per-thread pointer.
type FreeFunc func([]byte)

// Envelope is the shared, refcounted wrapper around a Record. It is
// created once per emitted record with its refcount set to the number of
// subscribing queues; each queue releases its reference exactly once, and
// the payload is freed when the last reference drops.
type Envelope struct {
	Record Record

	free FreeFunc
	refs atomic.Int32
}

// NewEnvelope creates an envelope with its refcount initialized to n, the
// number of queues about to receive it. n must be at least 1; a record
// with zero subscribers is never wrapped in an envelope at all (the I/O
// loop frees the payload directly in that case).
func NewEnvelope(rec Record, n int, free FreeFunc) *Envelope {
	e := &Envelope{Record: rec, free: free}
	e.refs.Store(int32(n))
	return e
}

// Acquire adds one reference. Used when a second, independently-owned view
// of the same envelope is created after construction (normally unnecessary
// since NewEnvelope already counts every initial subscriber).
func (e *Envelope) Acquire() {
	e.refs.Add(1)
}

// Release drops one reference. At zero it frees the payload through the
// driver's free hook, then drops the envelope itself.
func (e *Envelope) Release() {
	if e.refs.Add(-1) == 0 {
		if e.free != nil {
			e.free(e.Record.Payload)
		}
		e.Record.Payload = nil
	}
}

// RefCount reports the current reference count. Intended for tests; not
// meaningful as a basis for control flow since it can change concurrently.
func (e *Envelope) RefCount() int32 {
	return e.refs.Load()
}
