package safetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/vtime"
)

func TestProtocol_SingleWorkerWindowIsMax(t *testing.T) {
	p := New(vtime.Time(10), time.Minute)
	defer p.Close()

	require.Equal(t, vtime.Max, p.CalcWindow(false))
}

func TestProtocol_StalledOpForcesInvalid(t *testing.T) {
	p := New(vtime.Time(10), time.Minute)
	defer p.Close()

	require.Equal(t, vtime.Invalid, p.CalcWindow(true))
}

func TestProtocol_UnobservedPeerIsInvalid(t *testing.T) {
	p := New(vtime.Time(10), time.Minute)
	defer p.Close()

	p.AddPeer("b")
	require.Equal(t, vtime.Invalid, p.CalcWindow(false))
}

func TestProtocol_WindowIsMaxOfBaseAndForward(t *testing.T) {
	p := New(vtime.Time(5), time.Minute)
	defer p.Close()

	p.AddPeer("b")
	p.Observe("b", vtime.Time(100), vtime.Time(50), vtime.Time(200), vtime.Time(55))

	// base = min_last(100) + 5 - 1 = 104; forward = min_current(50) + 5 - 1 = 54.
	require.Equal(t, vtime.Time(104), p.CalcWindow(false))
}

func TestProtocol_SyncTimePublishesCurrentAsMinOfNextAndWindow(t *testing.T) {
	p := New(vtime.Time(5), time.Minute)
	defer p.Close()

	window, _ := p.SyncTime(vtime.Time(10), vtime.Time(20), false)
	require.Equal(t, vtime.Max, window)
	require.Equal(t, vtime.Time(20), p.My().Current)
}

func TestProtocol_SyncTimeBroadcastsOnlyWhenAdvanceGrows(t *testing.T) {
	p := New(vtime.Time(5), time.Minute)
	defer p.Close()

	p.AddPeer("b")
	p.Observe("b", vtime.Time(0), vtime.Time(0), vtime.Time(1000), vtime.Time(1000))

	_, first := p.SyncTime(vtime.Time(0), vtime.Time(1), false)
	require.NotNil(t, first)

	_, second := p.SyncTime(vtime.Time(0), vtime.Time(1), false)
	require.Nil(t, second, "repeating the same advance must not re-broadcast")
}

func TestProtocol_StalePeerBecomesInvalid(t *testing.T) {
	p := New(vtime.Time(5), 20*time.Millisecond)
	defer p.Close()

	p.AddPeer("b")
	p.Observe("b", vtime.Time(0), vtime.Time(0), vtime.Time(100), vtime.Time(100))
	require.Equal(t, vtime.Time(4), p.CalcWindow(false))

	require.Eventually(t, func() bool {
		return p.CalcWindow(false) == vtime.Invalid
	}, time.Second, 5*time.Millisecond)
}
