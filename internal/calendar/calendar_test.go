package calendar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/vtime"
)

func heartbeatAt(at vtime.Time) event.Event {
	return event.Event{At: at, Kind: event.KindHeartbeat, Heartbeat: &event.HeartbeatPayload{}}
}

func TestCalendar_EmptyPeekIsInvalid(t *testing.T) {
	c := New(DefaultConfig())
	require.Equal(t, vtime.Invalid, c.PeekMinTime())
	require.Equal(t, 0, c.Size())

	_, ok := c.PopMin()
	require.False(t, ok)
}

func TestCalendar_OrdersByTime(t *testing.T) {
	c := New(DefaultConfig())
	c.Insert(30, heartbeatAt(30))
	c.Insert(10, heartbeatAt(10))
	c.Insert(20, heartbeatAt(20))

	require.Equal(t, 3, c.Size())
	require.Equal(t, vtime.Time(10), c.PeekMinTime())

	var got []vtime.Time
	for {
		ev, ok := c.PopMin()
		if !ok {
			break
		}
		got = append(got, ev.At)
	}
	require.Equal(t, []vtime.Time{10, 20, 30}, got)
}

func TestCalendar_TiesAreFIFO(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 5; i++ {
		c.Insert(5, event.Event{At: 5, Kind: event.KindOp, Op: &event.OpPayload{ID: string(rune('a' + i))}})
	}

	var ids []string
	for {
		ev, ok := c.PopMin()
		if !ok {
			break
		}
		ids = append(ids, ev.Op.ID)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
}

func TestCalendar_SizeTracksInsertAndPop(t *testing.T) {
	c := New(DefaultConfig())
	c.Insert(1, heartbeatAt(1))
	c.Insert(1, heartbeatAt(1))
	c.Insert(2, heartbeatAt(2))
	require.Equal(t, 3, c.Size())

	_, ok := c.PopMin()
	require.True(t, ok)
	require.Equal(t, 2, c.Size())
}

func TestCalendar_CoarseGranularityGroupsBuckets(t *testing.T) {
	c := New(Config{Granularity: 10})
	c.Insert(12, heartbeatAt(12))
	c.Insert(5, heartbeatAt(5))

	// 12 falls into the [10,20) bucket and 5 into the [0,10) bucket; the
	// bucket key, not the raw timestamp, governs heap order.
	require.Equal(t, vtime.Time(0), c.PeekMinTime())
}
