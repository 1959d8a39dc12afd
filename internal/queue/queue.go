package queue

import (
	"sync"

	"github.com/behrlich/hound/internal/record"
)

// Queue is a bounded ring buffer of envelopes feeding one consumer
// context. Push is called from the I/O loop goroutine and never blocks;
// when the queue is full it evicts the oldest envelope (releasing its
// reference) and keeps accepting the newest. Pop/Drain are called from
// consumer goroutines.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	buf    []*record.Envelope
	head   int
	count  int
	onDrop func(dataID uint32)
}

// New creates a queue with room for capacity envelopes. capacity must be
// at least 1.
func New(capacity int) *Queue {
	q := &Queue{buf: make([]*record.Envelope, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// SetDropObserver installs a callback invoked, outside the queue's lock,
// once per envelope evicted on overflow. Nil disables it. Intended to be
// set once right after New, before the queue is shared with the I/O loop.
func (q *Queue) SetDropObserver(f func(dataID uint32)) {
	q.mu.Lock()
	q.onDrop = f
	q.mu.Unlock()
}

// Capacity reports the fixed ring size.
func (q *Queue) Capacity() int {
	return len(q.buf)
}

// Len reports how many envelopes are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Push enqueues e. If the queue is already full, the oldest envelope is
// released and overwritten; Push itself never blocks and never fails.
func (q *Queue) Push(e *record.Envelope) {
	q.mu.Lock()
	cap := len(q.buf)
	if q.count == cap {
		evicted := q.buf[q.head]
		q.buf[q.head] = e
		q.head = (q.head + 1) % cap
		onDrop := q.onDrop
		q.mu.Unlock()
		if onDrop != nil {
			onDrop(evicted.Record.DataID)
		}
		evicted.Release()
		q.notEmpty.Signal()
		return
	}
	tail := (q.head + q.count) % cap
	q.buf[tail] = e
	q.count++
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// popLocked removes and returns the oldest envelope. Caller must hold mu
// and must have verified q.count > 0.
func (q *Queue) popLocked() *record.Envelope {
	e := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return e
}

// PopBlocking waits until at least one envelope is available and returns
// the oldest one.
func (q *Queue) PopBlocking() *record.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == 0 {
		q.notEmpty.Wait()
	}
	return q.popLocked()
}

// PopNonblocking returns the oldest envelope without waiting. ok is false
// if the queue was empty.
func (q *Queue) PopNonblocking() (e *record.Envelope, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// DrainNBlocking waits until n envelopes are available and returns them in
// FIFO order.
func (q *Queue) DrainNBlocking(n int) []*record.Envelope {
	out := make([]*record.Envelope, 0, n)
	for len(out) < n {
		out = append(out, q.PopBlocking())
	}
	return out
}

// DrainNNonblocking returns up to n envelopes, as many as are immediately
// available, without waiting.
func (q *Queue) DrainNNonblocking(n int) []*record.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > q.count {
		n = q.count
	}
	out := make([]*record.Envelope, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, q.popLocked())
	}
	return out
}

// DrainBytesNonblocking drains whole envelopes, without waiting, while the
// running sum of their payload sizes stays at or below maxBytes. It
// returns the drained envelopes and the total bytes drained.
func (q *Queue) DrainBytesNonblocking(maxBytes int) ([]*record.Envelope, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*record.Envelope
	total := 0
	for q.count > 0 {
		next := q.buf[q.head]
		sz := len(next.Record.Payload)
		if total+sz > maxBytes {
			break
		}
		out = append(out, q.popLocked())
		total += sz
	}
	return out, total
}

// DrainAllNonblocking returns every currently queued envelope without
// waiting, leaving the queue empty.
func (q *Queue) DrainAllNonblocking() []*record.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*record.Envelope, 0, q.count)
	for q.count > 0 {
		out = append(out, q.popLocked())
	}
	return out
}
