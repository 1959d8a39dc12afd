// Package file implements a reference push driver for file sources: it
// treats path as a regular file or FIFO containing newline-delimited
// payloads for a single data_id, and hands each complete line to the
// core as one record. It has the general byte-stream push-driver shape
// OBD-II/CAN and GPS drivers would also have.
//
// args selects which schema entry this instance produces, as
// "data_id[,period_ns]", e.g. "2,1000000". data_id must name an entry
// present in the schema passed to Init; period_ns defaults to 1ms and is
// advisory only — the driver never throttles itself, it emits whenever a
// complete line has arrived.
package file

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/behrlich/hound"
	"github.com/behrlich/hound/internal/queue"
)

const defaultPeriodNs = uint64(1_000_000)

// Ops is the file driver's Ops implementation. It is a push driver: the
// I/O loop reads path's bytes for it and feeds them to Parse.
type Ops struct {
	path     string
	dataID   uint32
	periodNs uint64
	fd       int
}

// New constructs a fresh file Ops.
func New() *Ops {
	return &Ops{}
}

func (o *Ops) Init(path, args string) error {
	dataID, periodNs, err := parseArgs(args)
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	o.path = path
	o.dataID = dataID
	o.periodNs = periodNs
	return nil
}

func parseArgs(args string) (dataID uint32, periodNs uint64, err error) {
	parts := strings.SplitN(args, ",", 2)
	id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid data_id in args %q: %w", args, err)
	}
	periodNs = defaultPeriodNs
	if len(parts) == 2 {
		p, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid period_ns in args %q: %w", args, err)
		}
		periodNs = p
	}
	return uint32(id), periodNs, nil
}

func (o *Ops) Destroy() {}

func (o *Ops) DeviceName() string { return "file:" + o.path }

// Datadesc enables exactly the one descriptor matching the data_id args
// selected, at the configured period. Every other entry in the schema is
// left disabled: this instance produces only one data_id.
func (o *Ops) Datadesc(descs []hound.Desc) []hound.DriverDatadesc {
	out := make([]hound.DriverDatadesc, len(descs))
	for i, d := range descs {
		if d.DataID == o.dataID {
			out[i] = hound.DriverDatadesc{Desc: d, Enabled: true, AvailPeriods: []uint64{o.periodNs}}
			continue
		}
		out[i] = hound.DriverDatadesc{Desc: d, Enabled: false}
	}
	return out
}

// SetData is a no-op: a file source has no hardware configuration to push
// down; it always produces the one data_id Datadesc enabled.
func (o *Ops) SetData(reqs []hound.DataRequest) error { return nil }

// Start opens path read-only, non-blocking. The core forces
// non-blocking mode again on the returned fd, which is harmless.
func (o *Ops) Start() (int, error) {
	fd, err := unix.Open(o.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return 0, fmt.Errorf("file: open %s: %w", o.path, err)
	}
	o.fd = fd
	return fd, nil
}

func (o *Ops) Stop() error {
	if o.fd == 0 {
		return nil
	}
	err := unix.Close(o.fd)
	o.fd = 0
	return err
}

// Next is a no-op: file sources are periodic/push, not on-demand.
func (o *Ops) Next(dataID uint32, n int) error { return nil }

func (o *Ops) Alloc() hound.Alloc {
	return queue.DefaultAllocator{}
}

// Parse consumes every complete newline-terminated line in buf, up to
// 1000 records, and emits one RecordOut per line with the line's bytes
// (newline excluded) as the payload. The trailing incomplete line, if
// any, is left unconsumed for the next read to complete.
func (o *Ops) Parse(buf []byte) (consumed int, records []hound.RecordOut, err error) {
	alloc := o.Alloc()
	for len(records) < 1000 {
		idx := bytes.IndexByte(buf[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := buf[consumed : consumed+idx]
		payload := alloc.Alloc(len(line))
		copy(payload, line)
		records = append(records, hound.RecordOut{DataID: o.dataID, Payload: payload})
		consumed += idx + 1
	}
	return consumed, records, nil
}
