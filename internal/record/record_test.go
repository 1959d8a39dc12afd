package record

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_ReleaseAtZeroFreesPayload(t *testing.T) {
	var freed []byte
	freeCalls := 0
	free := func(b []byte) {
		freeCalls++
		freed = b
	}

	payload := []byte{1, 2, 3}
	rec := Record{Seqno: 0, DataID: 2, DevID: 1, Timestamp: time.Now(), Payload: payload}
	env := NewEnvelope(rec, 3, free)

	env.Release()
	env.Release()
	require.Equal(t, 0, freeCalls, "free must not fire before the last reference drops")

	env.Release()
	require.Equal(t, 1, freeCalls)
	require.Equal(t, payload, freed)
}

func TestEnvelope_ConcurrentReleaseFreesExactlyOnce(t *testing.T) {
	freeCalls := 0
	var mu sync.Mutex
	free := func([]byte) {
		mu.Lock()
		freeCalls++
		mu.Unlock()
	}

	const n = 64
	env := NewEnvelope(Record{Payload: make([]byte, 8)}, n, free)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			env.Release()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, freeCalls)
}

func TestEnvelope_AcquireExtendsLifetime(t *testing.T) {
	freeCalls := 0
	free := func([]byte) { freeCalls++ }

	env := NewEnvelope(Record{}, 1, free)
	env.Acquire()
	require.EqualValues(t, 2, env.RefCount())

	env.Release()
	require.Equal(t, 0, freeCalls)
	env.Release()
	require.Equal(t, 1, freeCalls)
}
