// Package metrics exposes Prometheus instrumentation for the core
// components, following the teacher's global-monitor metrics package.
// Every vector below is registered at init; BuildInfo is set by the
// entrypoints, and no component updates the others.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parasim_build_info",
		Help: "Build information of the simulator binary",
	}, []string{"version", "commit", "date"})

	CalendarDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parasim_calendar_depth",
		Help: "Number of pending events in a worker's event calendar",
	}, []string{"worker"})

	WindowStallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parasim_window_stalls_total",
		Help: "Total number of heartbeats that returned a stalled window",
	}, []string{"worker"})

	SafeWindowNs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parasim_safe_window_ns",
		Help: "Current safe-time window, in virtual ns",
	}, []string{"worker"})

	NotifyCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parasim_vepoll_notify_coalesced_total",
		Help: "Total number of readiness notifications coalesced by vepoll into an already-pending one",
	}, []string{"worker"})

	TimerCancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parasim_timer_cancellations_total",
		Help: "Total number of timers destroyed before firing",
	}, []string{"worker"})

	HeartbeatDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parasim_heartbeat_duration_seconds",
		Help:    "Wall-clock duration of a single worker Heartbeat call",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	}, []string{"worker"})

	EventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parasim_events_dispatched_total",
		Help: "Total number of events dispatched by a worker's heartbeat loop",
	}, []string{"worker", "kind"})

	BusFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parasim_bus_frames_total",
		Help: "Total number of frames sent or received over a bus endpoint",
	}, []string{"direction", "frame_type"})
)
