// Package nop implements a reference on-demand pull driver: it produces
// no real telemetry, but exercises the full registry/I-O-loop/context
// path without any hardware. Datadesc
// enables every descriptor of the schema it is given, each at period 0
// (on-demand) only. Calling Next queues up that many synthetic
// records per data_id; the I/O loop's next readiness check picks them up
// through Poll.
package nop

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/behrlich/hound"
	"github.com/behrlich/hound/internal/queue"
)

// DeviceName is the fixed name every nop instance reports.
const DeviceName = "dummy"

// Ops is the nop driver's Ops implementation. It is a pull driver: Poll
// drains a self-pipe that Next wakes, with no real syscall involved.
type Ops struct {
	path string
	args string

	mu      sync.Mutex
	pending map[uint32]int
	readFd  int
	writeFd int
}

// New constructs a fresh nop Ops. Pass a zero value to
// Engine.RegisterDriver via the factory signature it expects.
func New() *Ops {
	return &Ops{}
}

func (o *Ops) Init(path, args string) error {
	o.path = path
	o.args = args
	o.pending = make(map[uint32]int)
	return nil
}

func (o *Ops) Destroy() {}

func (o *Ops) DeviceName() string { return DeviceName }

// Datadesc enables every descriptor the schema declares, at period 0
// only: the nop driver never produces data unprompted.
func (o *Ops) Datadesc(descs []hound.Desc) []hound.DriverDatadesc {
	out := make([]hound.DriverDatadesc, len(descs))
	for i, d := range descs {
		out[i] = hound.DriverDatadesc{Desc: d, Enabled: true, AvailPeriods: []uint64{0}}
	}
	return out
}

// SetData is a no-op: the nop driver has no hardware configuration to
// reconcile against the subscription union.
func (o *Ops) SetData(reqs []hound.DataRequest) error { return nil }

// Start opens the wake pipe Next/Poll use to simulate readiness. The
// returned fd is the read end; the core forces it non-blocking.
func (o *Ops) Start() (int, error) {
	fds := make([]int, 2)
	if err := pipe2(fds); err != nil {
		return 0, fmt.Errorf("nop: pipe: %w", err)
	}
	o.mu.Lock()
	o.readFd, o.writeFd = fds[0], fds[1]
	o.mu.Unlock()
	return fds[0], nil
}

// Stop closes both ends of the wake pipe.
func (o *Ops) Stop() error {
	o.mu.Lock()
	r, w := o.readFd, o.writeFd
	o.readFd, o.writeFd = 0, 0
	o.mu.Unlock()
	closeFd(r)
	closeFd(w)
	return nil
}

// Next queues n synthetic records for dataID and wakes the I/O loop so
// Poll picks them up on its next readiness check.
func (o *Ops) Next(dataID uint32, n int) error {
	if n <= 0 {
		return nil
	}
	o.mu.Lock()
	o.pending[dataID] += n
	w := o.writeFd
	o.mu.Unlock()
	if w != 0 {
		writeByte(w)
	}
	return nil
}

// Poll drains the wake pipe and returns pending records, one per record
// requested through Next, in data_id order for determinism. At most
// MaxRecordsPerCall records are returned per call; any remainder stays
// pending and the wake pipe is re-armed so the next Poll picks it up.
func (o *Ops) Poll() (records []hound.RecordOut, timeout time.Duration, timeoutEnabled bool, err error) {
	o.mu.Lock()
	r := o.readFd
	o.mu.Unlock()
	if r != 0 {
		drainFd(r)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uint32, 0, len(o.pending))
	for dataID := range o.pending {
		ids = append(ids, dataID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	alloc := o.Alloc()
	for _, dataID := range ids {
		n := o.pending[dataID]
		if room := hound.MaxRecordsPerCall - len(records); n > room {
			n = room
		}
		for i := 0; i < n; i++ {
			records = append(records, hound.RecordOut{
				DataID:  dataID,
				Payload: alloc.Alloc(recordSize),
			})
		}
		o.pending[dataID] -= n
		if o.pending[dataID] == 0 {
			delete(o.pending, dataID)
		}
	}
	if len(o.pending) > 0 && o.writeFd != 0 {
		writeByte(o.writeFd)
	}
	return records, 0, false, nil
}

func (o *Ops) Alloc() hound.Alloc {
	return queue.DefaultAllocator{}
}

// recordSize is the fixed payload size the nop driver hands out: enough
// for a handful of float32 fields, matching a typical accel/gyro schema.
const recordSize = 16
