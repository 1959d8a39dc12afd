package nop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/hound"
)

func TestOps_DatadescEnablesEveryEntryAtPeriodZero(t *testing.T) {
	o := New()
	require.NoError(t, o.Init("/dev/nop", ""))

	descs := []hound.Desc{{DataID: 1}, {DataID: 2}}
	out := o.Datadesc(descs)
	require.Len(t, out, 2)
	for i, d := range out {
		require.True(t, d.Enabled)
		require.Equal(t, []uint64{0}, d.AvailPeriods)
		require.Equal(t, descs[i].DataID, d.Desc.DataID)
	}
}

func TestOps_NextThenPollReturnsQueuedRecords(t *testing.T) {
	o := New()
	require.NoError(t, o.Init("/dev/nop", ""))

	fd, err := o.Start()
	require.NoError(t, err)
	defer o.Stop()
	require.NotEqual(t, 0, fd)

	require.NoError(t, o.Next(1, 3))
	require.NoError(t, o.Next(2, 1))

	records, _, timeoutEnabled, err := o.Poll()
	require.NoError(t, err)
	require.False(t, timeoutEnabled)
	require.Len(t, records, 4)

	counts := map[uint32]int{}
	for _, r := range records {
		counts[r.DataID]++
		require.Len(t, r.Payload, recordSize)
	}
	require.Equal(t, 3, counts[1])
	require.Equal(t, 1, counts[2])
}

func TestOps_PollDrainsPendingExactlyOnce(t *testing.T) {
	o := New()
	require.NoError(t, o.Init("/dev/nop", ""))
	_, err := o.Start()
	require.NoError(t, err)
	defer o.Stop()

	require.NoError(t, o.Next(1, 2))
	records, _, _, err := o.Poll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, _, _, err = o.Poll()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestOps_StopClosesPipe(t *testing.T) {
	o := New()
	require.NoError(t, o.Init("/dev/nop", ""))
	_, err := o.Start()
	require.NoError(t, err)
	require.NoError(t, o.Stop())
	// A second Stop must not panic or double-close.
	require.NoError(t, o.Stop())
}
