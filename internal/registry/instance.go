package registry

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/behrlich/hound/internal/interfaces"
)

// subKey is one (data_id, period) subscription slot.
type subKey struct {
	dataID   uint32
	periodNs uint64
}

// Instance is a live driver, keyed by its device path. It owns the
// per-(data_id, period) subscription refcounts and the driver fd
// registered with the I/O loop once subscriptions exist; the queue set
// for that fd lives in the I/O loop.
type Instance struct {
	name    string
	path    string
	devID   uint32
	devName string
	token   uuid.UUID
	kind    interfaces.Kind
	descs   []interfaces.DriverDatadesc
	ops     interfaces.Ops

	mu    sync.Mutex
	subs  map[subKey]int
	fd    int
	hasFd bool

	seqno atomic.Uint64
}

// Ops implements interfaces.Driver.
func (i *Instance) Ops() interfaces.Ops { return i.ops }

// DevID implements interfaces.Driver.
func (i *Instance) DevID() uint32 { return i.devID }

// NextSeqno implements interfaces.Driver. Seqnos are strictly increasing
// per instance starting at 0, incremented once per emitted record
// regardless of how many queues receive it.
func (i *Instance) NextSeqno() uint64 { return i.seqno.Add(1) - 1 }

func (i *Instance) Name() string    { return i.name }
func (i *Instance) Path() string    { return i.path }
func (i *Instance) DevName() string { return i.devName }
func (i *Instance) Kind() interfaces.Kind { return i.kind }

// Token is a per-init instance identifier, distinct from the small
// sequential DevID: it lets log lines and tooling tell apart two
// back-to-back inits at the same path across a process restart, where
// DevID alone would either collide or require persisted state to avoid
// reuse.
func (i *Instance) Token() uuid.UUID { return i.token }

// Descs returns the driver's enabled-and-period-annotated descriptors.
func (i *Instance) Descs() []interfaces.DriverDatadesc {
	return i.descs
}

// HasEnabledDataID reports whether the driver enables dataID, and if so
// the avail_periods it declared for it.
func (i *Instance) HasEnabledDataID(dataID uint32) (periods []uint64, ok bool) {
	for _, d := range i.descs {
		if d.Enabled && d.Desc.DataID == dataID {
			return d.AvailPeriods, true
		}
	}
	return nil, false
}

// addRef increments the refcount for (dataID, periodNs). It reports
// nothing; callers act on the change through the union recomputation
// below.
func (i *Instance) addRef(dataID uint32, periodNs uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.subs == nil {
		i.subs = make(map[subKey]int)
	}
	i.subs[subKey{dataID, periodNs}]++
}

func (i *Instance) removeRef(dataID uint32, periodNs uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	k := subKey{dataID, periodNs}
	if i.subs[k] <= 1 {
		delete(i.subs, k)
		return
	}
	i.subs[k]--
}

// union returns the current subscription set: every (data_id, period)
// with a positive refcount.
func (i *Instance) union() []interfaces.DataRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]interfaces.DataRequest, 0, len(i.subs))
	for k := range i.subs {
		out = append(out, interfaces.DataRequest{DataID: k.dataID, PeriodNs: k.periodNs})
	}
	return out
}

func (i *Instance) inUse() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.subs) > 0
}

func (i *Instance) setFd(fd int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.fd = fd
	i.hasFd = true
}

func (i *Instance) clearFd() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hasFd = false
	i.fd = 0
}

func (i *Instance) currentFd() (fd int, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fd, i.hasFd
}
