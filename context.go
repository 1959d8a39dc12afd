package hound

import (
	"sync"
	"time"

	"github.com/behrlich/hound/internal/queue"
	"github.com/behrlich/hound/internal/record"
	"github.com/behrlich/hound/internal/registry"
)

// Record is the public view of one delivered record: the driver's raw
// payload plus the identifiers the core stamped onto it.
type Record struct {
	Seqno     uint64
	DataID    uint32
	DevID     uint32
	Timestamp time.Time
	Payload   []byte
}

// Callback is invoked once per drained record, synchronously on the
// caller's goroutine, in FIFO order for the context's queue. It must not
// retain Payload past return; the backing buffer is returned to the
// driver's allocator once the last queue holding the record has
// delivered it, which may be immediately afterward.
type Callback func(rec Record)

// ContextRequest describes a new subscription.
type ContextRequest struct {
	QueueLen     int
	Callback     Callback
	DataRequests []DataRequest
}

// driverGroup is one subscribed driver instance plus the (data_id,
// period) pairs this context requested from it.
type driverGroup struct {
	inst *registry.Instance
	reqs []DataRequest
}

// Context is a caller's subscription: a bounded queue fed by one or more
// driver instances, plus start/stop/read operations over it.
type Context struct {
	engine *Engine
	queue  *queue.Queue
	cb     Callback
	groups []*driverGroup

	mu     sync.Mutex
	active bool
	freed  bool
}

// AllocContext validates req, resolves each requested data_id to its
// driver, groups requests by driver, and refs each group in turn, rolling
// back every ref already taken if any later one fails. The returned
// context begins actively receiving data: its queue is already wired into
// every subscribed driver's fd.
func (e *Engine) AllocContext(req ContextRequest) (*Context, error) {
	if req.QueueLen < 1 {
		return nil, newError(ErrQueueTooSmall, "context_alloc", nil)
	}
	if req.Callback == nil {
		return nil, newError(ErrMissingCallback, "context_alloc", nil)
	}
	if len(req.DataRequests) == 0 {
		return nil, newError(ErrNoDataRequested, "context_alloc", nil)
	}
	if len(req.DataRequests) > MaxDataRequests {
		return nil, newError(ErrTooMuchData, "context_alloc", nil)
	}

	seen := make(map[uint32]bool, len(req.DataRequests))
	for _, dr := range req.DataRequests {
		if seen[dr.DataID] {
			return nil, newError(ErrDuplicateData, "context_alloc", nil)
		}
		seen[dr.DataID] = true
	}

	byInst := make(map[*registry.Instance]*driverGroup)
	var order []*registry.Instance
	for _, dr := range req.DataRequests {
		inst, err := e.registry.Get(dr.DataID)
		if err != nil {
			return nil, translateRegistryErr("context_alloc", err)
		}
		periods, _ := inst.HasEnabledDataID(dr.DataID)
		if !periodSupported(periods, dr.PeriodNs) {
			return nil, newError(ErrPeriodUnsupported, "context_alloc", nil)
		}
		g, ok := byInst[inst]
		if !ok {
			g = &driverGroup{inst: inst}
			byInst[inst] = g
			order = append(order, inst)
		}
		g.reqs = append(g.reqs, dr)
	}

	q := queue.New(req.QueueLen)
	if e.observer != nil {
		q.SetDropObserver(e.observer.RecordDropped)
	}

	var refed []*driverGroup
	for _, inst := range order {
		g := byInst[inst]
		if err := e.registry.Ref(inst, q, g.reqs); err != nil {
			for _, done := range refed {
				e.registry.Unref(done.inst, q, done.reqs)
			}
			return nil, translateRegistryErr("context_alloc", err)
		}
		refed = append(refed, g)
	}

	return &Context{engine: e, queue: q, cb: req.Callback, groups: refed, active: true}, nil
}

func periodSupported(avail []uint64, period uint64) bool {
	for _, p := range avail {
		if p == period {
			return true
		}
	}
	return false
}

// Start resumes delivery after Stop. Fails with ErrContextActive if
// already active.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return newError(ErrContextActive, "context_start", nil)
	}
	for _, g := range c.groups {
		if err := c.engine.registry.ResumeQueue(g.inst, c.queue); err != nil {
			return newError(ErrIOError, "context_start", err)
		}
	}
	c.active = true
	return nil
}

// Stop halts delivery without dropping the underlying subscriptions:
// other contexts sharing the same driver keep receiving data. Fails with
// ErrContextNotActive if already stopped.
func (c *Context) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return newError(ErrContextNotActive, "context_stop", nil)
	}
	for _, g := range c.groups {
		if err := c.engine.registry.PauseQueue(g.inst, c.queue); err != nil {
			return newError(ErrIOError, "context_stop", err)
		}
	}
	c.active = false
	return nil
}

// Free releases every subscription this context holds. The context must
// not be used afterward. Freeing twice is a no-op.
func (c *Context) Free() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return nil
	}
	for _, g := range c.groups {
		if err := c.engine.registry.Unref(g.inst, c.queue, g.reqs); err != nil {
			return translateRegistryErr("context_free", err)
		}
	}
	c.freed = true
	c.active = false
	return nil
}

// Next asks each subscribed driver to produce n more records for every
// data_id this context requested from it. Only meaningful for on-demand
// (period 0) data; periodic drivers accept it as a no-op.
func (c *Context) Next(n int) error {
	return c.next(n)
}

func (c *Context) next(n int) error {
	for _, g := range c.groups {
		for _, rq := range g.reqs {
			if err := g.inst.Ops().Next(rq.DataID, n); err != nil {
				return newError(ErrDriverFail, "context_next", err)
			}
		}
	}
	return nil
}

// Read calls Next(n) to request n more on-demand records, then blocks
// until n records have drained from the queue, invoking the callback on
// each in FIFO order.
func (c *Context) Read(n int) error {
	if err := c.next(n); err != nil {
		return err
	}
	c.deliver(c.queue.DrainNBlocking(n))
	return nil
}

// ReadNowait drains up to maxRecords without waiting and returns how many
// were delivered.
func (c *Context) ReadNowait(maxRecords int) int {
	envs := c.queue.DrainNNonblocking(maxRecords)
	c.deliver(envs)
	return len(envs)
}

// ReadBytesNowait drains whole records, without waiting, while the
// running sum of their payload sizes stays at or below maxBytes. It
// returns the number of records delivered and the total bytes drained.
func (c *Context) ReadBytesNowait(maxBytes int) (records int, bytes int) {
	envs, total := c.queue.DrainBytesNonblocking(maxBytes)
	c.deliver(envs)
	return len(envs), total
}

// ReadAllNowait drains every currently queued record without waiting and
// returns how many were delivered.
func (c *Context) ReadAllNowait() int {
	envs := c.queue.DrainAllNonblocking()
	c.deliver(envs)
	return len(envs)
}

func (c *Context) deliver(envs []*record.Envelope) {
	for _, e := range envs {
		c.cb(Record{
			Seqno:     e.Record.Seqno,
			DataID:    e.Record.DataID,
			DevID:     e.Record.DevID,
			Timestamp: e.Record.Timestamp,
			Payload:   e.Record.Payload,
		})
		e.Release()
	}
}
