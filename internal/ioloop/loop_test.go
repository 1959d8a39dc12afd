package ioloop

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/behrlich/hound/internal/interfaces"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/queue"
	"github.com/behrlich/hound/internal/schema"
)

type noopObserver struct{}

func (noopObserver) RecordEmitted(uint32) {}
func (noopObserver) ParseError(string)    {}

type fakeDriver struct {
	ops   interfaces.Ops
	devID uint32
	seq   uint64
}

func (d *fakeDriver) Ops() interfaces.Ops { return d.ops }
func (d *fakeDriver) DevID() uint32       { return d.devID }
func (d *fakeDriver) NextSeqno() uint64 {
	s := d.seq
	d.seq++
	return s
}

// fakeBaseOps supplies every Ops method not relevant to a given test's
// push/pull behavior.
type fakeBaseOps struct {
	dataID uint32
	alloc  interfaces.Alloc
}

func (f *fakeBaseOps) Init(string, string) error                          { return nil }
func (f *fakeBaseOps) Destroy()                                           {}
func (f *fakeBaseOps) DeviceName() string                                 { return "fake" }
func (f *fakeBaseOps) Datadesc([]schema.Desc) []interfaces.DriverDatadesc { return nil }
func (f *fakeBaseOps) SetData([]interfaces.DataRequest) error             { return nil }
func (f *fakeBaseOps) Start() (int, error)                                { return 0, nil }
func (f *fakeBaseOps) Stop() error                                        { return nil }
func (f *fakeBaseOps) Next(uint32, int) error                             { return nil }
func (f *fakeBaseOps) Alloc() interfaces.Alloc                            { return f.alloc }

// fakePushOps parses one newline-delimited record per Parse call; the
// line's bytes, newline excluded, are the payload.
type fakePushOps struct{ fakeBaseOps }

func (f *fakePushOps) Parse(buf []byte) (int, []interfaces.RecordOut, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return 0, nil, nil
	}
	line := buf[:idx]
	payload := f.alloc.Alloc(len(line))
	copy(payload, line)
	return idx + 1, []interfaces.RecordOut{{DataID: f.dataID, Payload: payload}}, nil
}

// fakePullOps reads every byte currently available on its own fd and
// emits one record per byte, mirroring how the bundled on-demand driver
// signals itself.
type fakePullOps struct {
	fakeBaseOps
	fd int
}

func (f *fakePullOps) Poll() ([]interfaces.RecordOut, time.Duration, bool, error) {
	buf := make([]byte, 64)
	n, err := unix.Read(f.fd, buf)
	if err != nil || n <= 0 {
		return nil, 0, false, nil
	}
	out := make([]interfaces.RecordOut, n)
	for i := 0; i < n; i++ {
		payload := f.alloc.Alloc(1)
		payload[0] = buf[i]
		out[i] = interfaces.RecordOut{DataID: f.dataID, Payload: payload}
	}
	return out, 0, false, nil
}

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	log := logging.NewLogger(&logging.Config{Level: logging.LevelError})
	l, err := New(log, noopObserver{})
	require.NoError(t, err)
	go l.Run()
	t.Cleanup(func() { l.Close() })
	return l
}

func waitForLen(t *testing.T, q *queue.Queue, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.Len() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never reached length %d (at %d)", n, q.Len())
}

func TestLoop_PushDriverEmitsRecordOnReadiness(t *testing.T) {
	l := newTestLoop(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	ops := &fakePushOps{fakeBaseOps{dataID: 2, alloc: queue.DefaultAllocator{}}}
	driver := &fakeDriver{ops: ops, devID: 1}
	require.NoError(t, l.AddFd(fds[0], driver))

	q := queue.New(4)
	require.NoError(t, l.AddQueue(fds[0], q))

	_, err := unix.Write(fds[1], []byte("hello\n"))
	require.NoError(t, err)

	waitForLen(t, q, 1)
	envs := q.DrainAllNonblocking()
	require.Len(t, envs, 1)
	require.Equal(t, uint32(2), envs[0].Record.DataID)
	require.Equal(t, []byte("hello"), envs[0].Record.Payload)
}

func TestLoop_PullDriverPolledOnOwnFdReadiness(t *testing.T) {
	l := newTestLoop(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	ops := &fakePullOps{fakeBaseOps: fakeBaseOps{dataID: 3, alloc: queue.DefaultAllocator{}}, fd: fds[0]}
	driver := &fakeDriver{ops: ops, devID: 2}
	require.NoError(t, l.AddFd(fds[0], driver))

	q := queue.New(8)
	require.NoError(t, l.AddQueue(fds[0], q))

	_, err := unix.Write(fds[1], []byte{1, 2, 3})
	require.NoError(t, err)

	waitForLen(t, q, 3)
	envs := q.DrainAllNonblocking()
	require.Len(t, envs, 3)
	for i, e := range envs {
		require.Equal(t, uint32(3), e.Record.DataID)
		require.Equal(t, byte(i+1), e.Record.Payload[0])
	}
}

func TestLoop_SeqnoMonotonicPerDriver(t *testing.T) {
	l := newTestLoop(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	ops := &fakePushOps{fakeBaseOps{dataID: 2, alloc: queue.DefaultAllocator{}}}
	driver := &fakeDriver{ops: ops, devID: 1}
	require.NoError(t, l.AddFd(fds[0], driver))

	q := queue.New(8)
	require.NoError(t, l.AddQueue(fds[0], q))

	_, err := unix.Write(fds[1], []byte("a\nb\nc\n"))
	require.NoError(t, err)

	waitForLen(t, q, 3)
	envs := q.DrainAllNonblocking()
	require.Len(t, envs, 3)
	for i, e := range envs {
		require.Equal(t, uint64(i), e.Record.Seqno)
	}
}

func TestLoop_AddFdRejectsDriverWithoutExactlyOneKind(t *testing.T) {
	l := newTestLoop(t)
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	driver := &fakeDriver{ops: &fakeBaseOps{alloc: queue.DefaultAllocator{}}, devID: 1}
	err := l.AddFd(fds[0], driver)
	require.Error(t, err)
}

func TestLoop_RemoveFdKeepsMovedFdReachable(t *testing.T) {
	l := newTestLoop(t)
	var fds1, fds2 [2]int
	require.NoError(t, unix.Pipe(fds1[:]))
	require.NoError(t, unix.Pipe(fds2[:]))
	t.Cleanup(func() {
		unix.Close(fds1[0])
		unix.Close(fds1[1])
		unix.Close(fds2[0])
		unix.Close(fds2[1])
	})

	ops1 := &fakePushOps{fakeBaseOps{dataID: 2, alloc: queue.DefaultAllocator{}}}
	ops2 := &fakePushOps{fakeBaseOps{dataID: 3, alloc: queue.DefaultAllocator{}}}
	d1 := &fakeDriver{ops: ops1, devID: 1}
	d2 := &fakeDriver{ops: ops2, devID: 2}

	require.NoError(t, l.AddFd(fds1[0], d1))
	require.NoError(t, l.AddFd(fds2[0], d2))
	require.NoError(t, l.RemoveFd(fds1[0]))

	q := queue.New(4)
	require.NoError(t, l.AddQueue(fds2[0], q))
	_, err := unix.Write(fds2[1], []byte("x\n"))
	require.NoError(t, err)

	waitForLen(t, q, 1)
	envs := q.DrainAllNonblocking()
	require.Equal(t, uint32(3), envs[0].Record.DataID)
}
