// Package ioloop implements the background reader that owns every
// pollable driver fd: it demultiplexes readiness, asks each driver to
// turn bytes (or a direct syscall) into records, and fans those records
// into every subscribing queue.
package ioloop

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/hound/internal/constants"
	"github.com/behrlich/hound/internal/interfaces"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/record"
)

// Observer receives the loop's runtime events. Its method set is a subset
// of the engine's public Observer so the engine can pass its own Observer
// straight through.
type Observer interface {
	RecordEmitted(dataID uint32)
	ParseError(path string)
}

type fdCtx struct {
	fd     int
	driver interfaces.Driver
	kind   interfaces.Kind
	queues []interfaces.QueuePusher

	pending []byte // unconsumed bytes left over from a push driver's last read

	hasTimeout bool
	timeoutAt  time.Time
}

// Loop is the engine's single I/O thread. Mutating the fd/queue set is
// unsafe while the loop is blocked in its wait syscall, so every mutator
// (AddFd, RemoveFd, AddQueue, RemoveQueue) runs through pauseAndMutate:
// wake the loop via a self-pipe, wait for it to report paused, mutate,
// resume. A self-pipe stands in where a POSIX-signal ppoll handshake
// would otherwise be used — Go cannot reliably steer a signal to one
// specific OS thread — with the same atomic-wake/re-wait semantics:
// pauseReq is only ever cleared by the same goroutine that set it, while
// holding the loop's mutex throughout the mutation.
type Loop struct {
	log      *logging.Logger
	observer Observer

	wakeR int
	wakeW int

	// scratch is the fixed read buffer push-driver bytes land in. Only
	// the loop goroutine touches it.
	scratch []byte

	// mutMu serializes pauseAndMutate callers: the pauseReq/paused
	// handshake below is a one-mutator-at-a-time protocol, and two
	// concurrent mutators clearing each other's pauseReq would strand
	// one of them waiting for a pause that never comes.
	mutMu sync.Mutex

	mu        sync.Mutex
	cond      *sync.Cond
	running   bool
	activated bool
	pauseReq  bool
	paused    bool

	ctxs []*fdCtx
	byFd map[int]int
}

// New creates a Loop. Call Run in its own goroutine to start it.
func New(log *logging.Logger, observer Observer) (*Loop, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("ioloop: wake pipe: %w", err)
	}
	l := &Loop{
		log:       log,
		observer:  observer,
		wakeR:     p[0],
		wakeW:     p[1],
		scratch:   make([]byte, constants.DefaultScratchBufSize),
		activated: true,
		byFd:      make(map[int]int),
	}
	l.cond = sync.NewCond(&l.mu)
	return l, nil
}

// Run executes the loop body until Close is called. Intended to be run in
// its own goroutine: go loop.Run().
func (l *Loop) Run() {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	for {
		l.mu.Lock()
		for l.running && (!l.activated || len(l.ctxs) == 0) && !l.pauseReq {
			l.cond.Wait()
		}
		if !l.running {
			// A mutator may have requested a pause just as Close
			// landed; report paused so it proceeds. The loop never
			// touches the fd set again, so the mutation is safe.
			l.paused = true
			l.cond.Broadcast()
			l.mu.Unlock()
			return
		}
		if l.pauseReq {
			l.servePauseLocked()
			l.mu.Unlock()
			continue
		}

		pfds := make([]unix.PollFd, len(l.ctxs)+1)
		pfds[0] = unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN}
		ctxs := make([]*fdCtx, len(l.ctxs))
		copy(ctxs, l.ctxs)
		for i, c := range ctxs {
			pfds[i+1] = unix.PollFd{Fd: int32(c.fd), Events: unix.POLLIN}
		}
		timeoutMs := nextTimeoutMs(ctxs)
		l.mu.Unlock()

		_, err := unix.Poll(pfds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.log.Errorf("poll: %v", err)
			time.Sleep(constants.PollRetryDelay)
			continue
		}

		pausedMidRound := false
		if pfds[0].Revents&unix.POLLIN != 0 {
			drainWakePipe(l.wakeR)
			l.mu.Lock()
			if l.pauseReq {
				l.servePauseLocked()
				pausedMidRound = true
			}
			l.mu.Unlock()
		}
		if pausedMidRound {
			// The fd/queue set may have changed; any readiness we
			// haven't processed yet will simply reappear on the next
			// Poll, so nothing buffered is lost or reordered.
			continue
		}

		now := time.Now()
		for i, c := range ctxs {
			ready := pfds[i+1].Revents != 0
			dueTimeout := c.hasTimeout && !now.Before(c.timeoutAt)
			if !ready && !dueTimeout {
				continue
			}
			l.dispatch(c, ready)
		}
	}
}

// servePauseLocked reports "paused" to whichever goroutine is waiting in
// pauseAndMutate and blocks until it finishes mutating. Caller must hold
// l.mu.
func (l *Loop) servePauseLocked() {
	l.paused = true
	l.cond.Broadcast()
	for l.pauseReq {
		l.cond.Wait()
	}
	l.paused = false
}

// pauseAndMutate is the mutator side of the pause protocol. If the loop
// hasn't started running yet (Run was never called, as in unit tests that
// exercise AddFd directly), it mutates immediately.
func (l *Loop) pauseAndMutate(mutate func()) {
	l.mutMu.Lock()
	defer l.mutMu.Unlock()

	l.mu.Lock()
	if !l.running {
		mutate()
		l.mu.Unlock()
		return
	}
	l.pauseReq = true
	l.cond.Broadcast()
	l.mu.Unlock()

	unix.Write(l.wakeW, []byte{0})

	l.mu.Lock()
	for !l.paused {
		l.cond.Wait()
	}
	mutate()
	l.pauseReq = false
	l.paused = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Close stops the loop. It does not join the goroutine running Run; the
// caller is expected to have started Run with its own lifetime tracking
// (e.g. a WaitGroup) if it needs to observe shutdown completion.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.running = false
	l.cond.Broadcast()
	l.mu.Unlock()
	unix.Write(l.wakeW, []byte{0})
	return nil
}

// AddFd registers fd, owned by driver d, with the loop, forcing fd into
// non-blocking mode first.
func (l *Loop) AddFd(fd int, d interfaces.Driver) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("ioloop: set nonblocking fd=%d: %w", fd, err)
	}
	kind, ok := interfaces.KindOf(d.Ops())
	if !ok {
		return fmt.Errorf("ioloop: driver must implement exactly one of ParseOps/PollOps")
	}
	l.pauseAndMutate(func() {
		l.byFd[fd] = len(l.ctxs)
		l.ctxs = append(l.ctxs, &fdCtx{fd: fd, driver: d, kind: kind})
	})
	return nil
}

// RemoveFd unregisters fd. No-op if fd isn't registered.
func (l *Loop) RemoveFd(fd int) error {
	l.pauseAndMutate(func() {
		idx, ok := l.byFd[fd]
		if !ok {
			return
		}
		last := len(l.ctxs) - 1
		movedFd := l.ctxs[last].fd
		l.ctxs[idx] = l.ctxs[last]
		l.ctxs[last] = nil
		l.ctxs = l.ctxs[:last]
		delete(l.byFd, fd)
		if idx != last {
			l.byFd[movedFd] = idx
		}
	})
	return nil
}

// AddQueue registers q to receive records from fd's driver. No-op if fd
// isn't registered.
func (l *Loop) AddQueue(fd int, q interfaces.QueuePusher) error {
	l.pauseAndMutate(func() {
		idx, ok := l.byFd[fd]
		if !ok {
			return
		}
		l.ctxs[idx].queues = append(l.ctxs[idx].queues, q)
	})
	return nil
}

// RemoveQueue unregisters q from fd's driver. No-op if fd isn't
// registered or q isn't in its queue set.
func (l *Loop) RemoveQueue(fd int, q interfaces.QueuePusher) error {
	l.pauseAndMutate(func() {
		idx, ok := l.byFd[fd]
		if !ok {
			return
		}
		qs := l.ctxs[idx].queues
		for i, existing := range qs {
			if existing == q {
				l.ctxs[idx].queues = append(qs[:i], qs[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (l *Loop) dispatch(c *fdCtx, ready bool) {
	switch c.kind {
	case interfaces.KindPush:
		if ready {
			l.handlePush(c)
		}
	case interfaces.KindPull:
		l.handlePull(c)
	}
}

// handlePush implements the push-driver branch of step 3: read into a
// fixed scratch buffer, then feed it to Parse repeatedly until the driver
// reports zero consumption or the buffer empties.
func (l *Loop) handlePush(c *fdCtx) {
	buf := l.scratch
	fdlog := l.log.WithFd(c.fd)

	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return
		}
		fdlog.Errorf("read: %v", err)
		return
	}
	if n == 0 {
		return
	}

	data := buf[:n]
	if len(c.pending) > 0 {
		data = append(append([]byte(nil), c.pending...), data...)
	}

	parseOps := c.driver.Ops().(interfaces.ParseOps)
	for len(data) > 0 {
		consumed, records, err := parseOps.Parse(data)
		if err != nil {
			fdlog.Errorf("parse: %v", err)
			l.observer.ParseError(fmt.Sprintf("fd:%d", c.fd))
			data = nil
			break
		}
		if len(records) > 0 {
			l.emit(c, records)
		}
		if consumed == 0 {
			break
		}
		data = data[consumed:]
	}
	c.pending = append([]byte(nil), data...)
}

// handlePull implements the pull-driver branch: the driver performs its
// own I/O and hands back records plus an optional next wake request.
func (l *Loop) handlePull(c *fdCtx) {
	pollOps := c.driver.Ops().(interfaces.PollOps)
	records, timeout, timeoutEnabled, err := pollOps.Poll()
	if err != nil {
		l.log.WithFd(c.fd).Errorf("poll driver: %v", err)
		return
	}
	if len(records) > 0 {
		l.emit(c, records)
	}
	c.hasTimeout = timeoutEnabled
	if timeoutEnabled {
		c.timeoutAt = time.Now().Add(timeout)
	}
}

// emit stamps seqno/dev_id for each record, wraps it in an envelope sized
// to the fd's current queue count, and pushes that envelope into every
// one of them. A record with zero subscribing queues is freed directly;
// seqno is still consumed so the gap is observable downstream.
func (l *Loop) emit(c *fdCtx, records []interfaces.RecordOut) {
	alloc := c.driver.Ops().Alloc()
	var free record.FreeFunc
	if alloc != nil {
		free = alloc.Free
	}
	for _, rout := range records {
		seqno := c.driver.NextSeqno()
		l.observer.RecordEmitted(rout.DataID)

		if len(c.queues) == 0 {
			if free != nil {
				free(rout.Payload)
			}
			continue
		}

		rec := record.Record{
			Seqno:     seqno,
			DataID:    rout.DataID,
			DevID:     c.driver.DevID(),
			Timestamp: time.Now(),
			Payload:   rout.Payload,
		}
		env := record.NewEnvelope(rec, len(c.queues), free)
		for _, q := range c.queues {
			q.Push(env)
		}
	}
}

func nextTimeoutMs(ctxs []*fdCtx) int {
	var soonest time.Time
	have := false
	for _, c := range ctxs {
		if c.hasTimeout && (!have || c.timeoutAt.Before(soonest)) {
			soonest = c.timeoutAt
			have = true
		}
	}
	if !have {
		return -1
	}
	if d := time.Until(soonest); d > 0 {
		return int(d / time.Millisecond)
	}
	return 0
}

func drainWakePipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
