// Package config validates the configuration surface named in spec.md
// §6 and projects it into the calendar, vepoll, worker, and safe-time
// constructors, following the teacher's RunnerConfig.Validate() pattern.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
	"github.com/parasim/parasim/internal/worker"
)

// Config holds every recognized key from spec.md §6, in its Go-native
// form, before being threaded into C1-C8 constructors as plain
// arguments — components never read config from globals.
type Config struct {
	// EventTrackerSize is the event_tracker_size key. It is validated
	// (>= 0) but no component reads it: the calendar's heap always grows
	// on demand.
	EventTrackerSize int

	// EventTrackerGranularity is the calendar bucket width, in ns of
	// virtual time. 1 gives exact per-timestamp ordering (I1).
	EventTrackerGranularity vtime.Time

	// DTimerTsetHashsize and DTimerTsetHashgrowth are the dtimer_tset_*
	// keys. They are validated but no component reads them: the timer
	// manager's per-host maps are plain Go maps with no preset capacity.
	DTimerTsetHashsize   int
	DTimerTsetHashgrowth float64

	// UseWallclockStartupTimeOffset reports virtual time as an offset
	// from the real wall-clock time the worker started, rather than from
	// zero, when set.
	UseWallclockStartupTimeOffset bool

	// RunaheadFloorMS is the floor, in ms, applied to the topology's
	// min_latency before it is handed to the safe-time protocol, so the
	// window never advances by less than this per round.
	RunaheadFloorMS int

	// HeartbeatInterval and BatchSize configure the worker loop (C5).
	HeartbeatInterval time.Duration
	BatchSize         int

	// PollDelay is vepoll's (C3) safety-net re-check interval.
	PollDelay time.Duration
}

// Default returns the same defaults the teacher's components fall back
// to when unconfigured.
func Default() Config {
	return Config{
		EventTrackerSize:              0,
		EventTrackerGranularity:       1,
		DTimerTsetHashsize:            64,
		DTimerTsetHashgrowth:          2.0,
		UseWallclockStartupTimeOffset: false,
		RunaheadFloorMS:               0,
		HeartbeatInterval:             time.Second,
		BatchSize:                     256,
		PollDelay:                     time.Second,
	}
}

// Validate rejects configurations that would violate a core invariant.
func (c *Config) Validate() error {
	if c.EventTrackerSize < 0 {
		return errors.New("config: event_tracker_size must be >= 0")
	}
	if c.EventTrackerGranularity < 1 {
		return errors.New("config: event_tracker_granularity must be >= 1")
	}
	if c.DTimerTsetHashsize <= 0 {
		return errors.New("config: dtimer_tset_hashsize must be > 0")
	}
	if c.DTimerTsetHashgrowth <= 1.0 {
		return errors.New("config: dtimer_tset_hashgrowth must be > 1.0")
	}
	if c.RunaheadFloorMS < 0 {
		return errors.New("config: RUNAHEAD_FLOOR_MS must be >= 0")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("config: heartbeat interval must be > 0")
	}
	if c.BatchSize <= 0 {
		return errors.New("config: batch size must be > 0")
	}
	if c.PollDelay <= 0 {
		return errors.New("config: poll delay must be > 0")
	}
	return nil
}

// CalendarConfig projects the calendar-relevant subset of Config.
func (c Config) CalendarConfig() calendar.Config {
	return calendar.Config{Granularity: c.EventTrackerGranularity}
}

// VepollConfig projects the vepoll-relevant subset of Config.
func (c Config) VepollConfig() vepoll.Config {
	return vepoll.Config{PollDelay: vtime.Time(c.PollDelay.Nanoseconds())}
}

// WorkerConfig projects the worker-relevant subset of Config.
func (c Config) WorkerConfig() worker.Config {
	return worker.Config{
		BatchSize:         c.BatchSize,
		HeartbeatInterval: vtime.Time(c.HeartbeatInterval.Nanoseconds()),
	}
}

// RunaheadFloor returns the runahead floor as a vtime.Time duration.
func (c Config) RunaheadFloor() vtime.Time {
	return vtime.Time(c.RunaheadFloorMS) * vtime.Time(time.Millisecond)
}

// ParseError wraps a flag-parsing failure with the offending key, for
// cmd/* entrypoints to report consistently.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: invalid %s: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
