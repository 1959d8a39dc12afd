// Package interfaces defines the driver ops contract the core consumes.
// It depends only on schema, so drivers, the registry, and the I/O loop
// can all import it without creating a cycle.
package interfaces

import (
	"time"

	"github.com/behrlich/hound/internal/schema"
)

// DriverDatadesc pairs one parsed schema descriptor with the driver's own
// enable/period decision for it, made inside Ops.Datadesc. Invariant:
// Enabled implies len(AvailPeriods) >= 1.
type DriverDatadesc struct {
	Desc         schema.Desc
	Enabled      bool
	AvailPeriods []uint64 // nanoseconds; 0 means on-demand
}

// DataRequest is one (data_id, period) pair a context wants from a
// driver. PeriodNs of 0 means on-demand.
type DataRequest struct {
	DataID   uint32
	PeriodNs uint64
}

// RecordOut is one record a driver emits from Parse or Poll. Payload must
// be allocated through the driver's own Ops.Alloc(), so the core can free
// it uniformly once every subscribing queue has released it.
type RecordOut struct {
	DataID  uint32
	Payload []byte
}

// Alloc is the symmetric allocate/free pair a driver allocates record
// payloads through. Modeled as a capability the driver exposes (Ops.Alloc)
// rather than a hidden per-thread pointer, so the core can free
// driver-produced memory uniformly without knowing which driver produced
// it.
type Alloc interface {
	Alloc(n int) []byte
	Free(b []byte)
}

// Ops is the contract every driver implements. Kind is derived, not
// declared: a driver is a push driver if it also implements ParseOps, a
// pull driver if it implements PollOps. Exactly one of the two must hold;
// KindOf reports a driver that implements both or neither as invalid.
type Ops interface {
	// Init acquires device configuration for path. args is an opaque,
	// driver-defined string. Returns an error on bad arguments.
	Init(path string, args string) error

	// Destroy releases anything Init allocated.
	Destroy()

	// DeviceName returns a short name for the device instance, used as
	// the dev_name surfaced through descriptor lookups.
	DeviceName() string

	// Datadesc is called once after Init with the driver's full parsed
	// schema. It returns, index-aligned with descs, which entries the
	// driver enables and at which periods it can deliver them.
	Datadesc(descs []schema.Desc) []DriverDatadesc

	// SetData is called whenever the subscription union for this driver
	// changes, with the full new union. The driver reconfigures to
	// produce exactly this set.
	SetData(reqs []DataRequest) error

	// Start is called on the first subscription. It opens the device and
	// returns a file descriptor; the core forces it non-blocking.
	Start() (fd int, err error)

	// Stop is called when the last subscription drops. It closes the fd
	// returned by Start.
	Stop() error

	// Next triggers an on-demand sample for dataID, n times. Periodic
	// drivers accept it as a no-op.
	Next(dataID uint32, n int) error

	// Alloc returns the allocator this driver uses for record payloads.
	// The core calls its Free once every subscribing queue has released
	// an envelope, regardless of which driver produced it.
	Alloc() Alloc
}

// ParseOps is implemented by push drivers: drivers whose bytes the I/O
// loop reads on their behalf and hands to Parse.
type ParseOps interface {
	// Parse consumes a prefix of buf, emitting at most 1000 records.
	// consumed is how many leading bytes of buf were used; the I/O loop
	// keeps the remaining suffix for the next call.
	Parse(buf []byte) (consumed int, records []RecordOut, err error)
}

// PollOps is implemented by pull drivers: drivers that own their I/O
// syscall directly and return records from it.
type PollOps interface {
	// Poll performs I/O and emits at most 1000 records. If
	// timeoutEnabled, the I/O loop treats timeout expiry on this fd as an
	// ordinary readiness event on the next iteration.
	Poll() (records []RecordOut, timeout time.Duration, timeoutEnabled bool, err error)
}

// Kind is a driver's push/pull classification, derived from which of
// ParseOps/PollOps it implements.
type Kind int

const (
	KindPush Kind = iota
	KindPull
)

func (k Kind) String() string {
	if k == KindPull {
		return "pull"
	}
	return "push"
}

// KindOf reports ops's derived kind. ok is false if ops implements both
// ParseOps and PollOps, or neither — a driver-registration error the
// registry must reject.
func KindOf(ops Ops) (kind Kind, ok bool) {
	_, isParse := ops.(ParseOps)
	_, isPoll := ops.(PollOps)
	switch {
	case isParse && !isPoll:
		return KindPush, true
	case isPoll && !isParse:
		return KindPull, true
	default:
		return 0, false
	}
}
