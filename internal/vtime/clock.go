package vtime

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Source reports the current virtual time of a worker to guest code via
// gettime(), optionally offset by wall-clock startup time when
// use_wallclock_startup_time_offset is configured. The wall clock itself is
// injected via clockwork.Clock so tests can drive it deterministically.
type Source struct {
	wall          clockwork.Clock
	startWall     time.Time
	useWallOffset bool
}

// NewSource creates a time source. wall is typically clockwork.NewRealClock()
// in production and clockwork.NewFakeClock() in tests.
func NewSource(wall clockwork.Clock, useWallOffset bool) *Source {
	return &Source{
		wall:          wall,
		startWall:     wall.Now(),
		useWallOffset: useWallOffset,
	}
}

// GetTime mirrors the guest-facing gettime() call: the virtual time current
// as of the caller's last dispatched event, plus the wall-clock offset since
// startup if configured.
func (s *Source) GetTime(current Time) time.Duration {
	d := time.Duration(current)
	if s.useWallOffset {
		d += s.wall.Since(s.startWall)
	}
	return d
}
