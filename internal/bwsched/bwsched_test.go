package bwsched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/vtime"
)

func TestScheduler_UntrackedLinkAlwaysAdmits(t *testing.T) {
	s := New()
	require.True(t, s.Admit("link-1", 0, true, 1_000_000))
}

func TestScheduler_AdmitsUntilBudgetExhausted(t *testing.T) {
	s := New()
	s.Track("link-1", 0, 8, 8) // 8kbps = 1000 bytes/sec

	require.True(t, s.Admit("link-1", 0, true, 500))
	require.True(t, s.Admit("link-1", 0, true, 500))
	require.False(t, s.Admit("link-1", 0, true, 500))
}

func TestScheduler_RefillsOverTime(t *testing.T) {
	s := New()
	s.Track("link-1", 0, 8, 8)

	require.True(t, s.Admit("link-1", 0, true, 1000))
	require.False(t, s.Admit("link-1", 0, true, 1000))

	oneSecond := vtime.Time(1_000_000_000)
	require.True(t, s.Admit("link-1", oneSecond, true, 1000))
}

func TestScheduler_DirectionsAreIndependent(t *testing.T) {
	s := New()
	s.Track("link-1", 0, 8, 80)

	require.True(t, s.Admit("link-1", 0, true, 1000))
	require.False(t, s.Admit("link-1", 0, true, 1000))
	require.True(t, s.Admit("link-1", 0, false, 1000))
}
