// Package worker implements the worker loop (C5): the single-threaded,
// heartbeat-driven dispatch cycle that pops events no later than the
// current safe-time window and routes them to the timer, transport, op
// and vepoll handlers, exactly per spec.md §4.5's contract-level
// pseudocode.
package worker

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostctx"
	"github.com/parasim/parasim/internal/safetime"
	"github.com/parasim/parasim/internal/timer"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
)

// Mode is the worker's lifecycle stage (§4.5).
type Mode int

const (
	ModeSpooling Mode = iota
	ModeSimulating
	ModeComplete
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeSpooling:
		return "spooling"
	case ModeSimulating:
		return "simulating"
	case ModeComplete:
		return "complete"
	case ModeError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrBackwardsTime is the fatal condition raised if the calendar ever
// yields an event earlier than current_time (§4.5 step 4a).
var ErrBackwardsTime = errors.New("worker: dequeued event precedes current time")

// ErrNotSimulating is returned by Heartbeat when the worker is not in
// Simulating mode (§4.5 step 1, "return blocked").
var ErrNotSimulating = errors.New("worker: heartbeat called while not simulating")

// stalledOp is one entry of stalled_ops: an op that could not complete on
// a previous attempt because a dependency was not yet resolved.
type stalledOp struct {
	id string
	op event.Op
}

// ExecOp attempts to execute op (correlated by id). stalled reports
// whether the op must be retried on a future heartbeat because a
// dependency is not yet resolved; err is fatal (transitions the worker to
// Error).
type ExecOp func(id string, op event.Op) (stalled bool, err error)

// Config bounds a single Heartbeat call's batch size and the ticktock
// heartbeat-event cadence (§4.5's "bounded batch"); both are set by the
// caller, with DefaultConfig as the fallback.
type Config struct {
	BatchSize         int
	HeartbeatInterval vtime.Time
}

// DefaultConfig processes up to 256 events per Heartbeat call and
// reschedules the ticktock heartbeat event every 1s of virtual time.
func DefaultConfig() Config {
	return Config{BatchSize: 256, HeartbeatInterval: vtime.Time(time.Second)}
}

// Hooks are the worker's callbacks into collaborators that live outside
// this package, injected so Worker itself depends only on the core C1–C4
// packages and never on the coordinator or bus.
type Hooks struct {
	// ExecOp runs one Op event's handler.
	ExecOp ExecOp
	// OnPacketOut is invoked for every dispatched Packet event whose
	// destination host is registered and not destroyed, with that host's
	// ID and the packet bytes; out of scope beyond this seam (the
	// codec/transport state machine lives outside the core).
	OnPacketOut func(host event.HostID, data []byte)
	// OnBroadcastState is invoked whenever sync_time decides a State
	// frame is due; the caller supplies the actual fan-out (cmd/worker
	// leaves it unset, so its workers send no State frames).
	OnBroadcastState func(b safetime.Broadcast)
}

// Worker is one single-threaded simulation shard: its own calendar,
// timers, vepoll mux, host-context switcher, hosts and safe-time state.
// Per §5, a Worker is never touched from more than one goroutine.
type Worker struct {
	ID  string
	Log *slog.Logger

	cfg Config

	cal      *calendar.Calendar
	timers   *timer.Manager
	vepoll   *vepoll.Mux
	switcher *hostctx.Switcher
	services *hostctx.Services
	proto    *safetime.Protocol
	hooks    Hooks

	hosts map[event.HostID]*hostctx.Host

	mode        Mode
	currentTime vtime.Time
	stalledOps  *list.List
	err         error

	heartbeatPending bool
}

// New creates a worker in Spooling mode.
func New(id string, cal *calendar.Calendar, timers *timer.Manager, vmux *vepoll.Mux, switcher *hostctx.Switcher, services *hostctx.Services, proto *safetime.Protocol, hooks Hooks, cfg Config, log *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Worker{
		ID:         id,
		Log:        log,
		cfg:        cfg,
		cal:        cal,
		timers:     timers,
		vepoll:     vmux,
		switcher:   switcher,
		services:   services,
		proto:      proto,
		hooks:      hooks,
		hosts:      make(map[event.HostID]*hostctx.Host),
		mode:       ModeSpooling,
		stalledOps: list.New(),
	}
}

// Mode reports the worker's current lifecycle stage.
func (w *Worker) Mode() Mode { return w.mode }

// Err reports the fatal error that moved the worker to Error mode, if any.
func (w *Worker) Err() error { return w.err }

// CurrentTime reports the virtual time of the last dispatched event.
func (w *Worker) CurrentTime() vtime.Time { return w.currentTime }

// AddHost registers h with this worker, e.g. in response to a CreateNode
// op's execution.
func (w *Worker) AddHost(h *hostctx.Host) { w.hosts[h.ID] = h }

// EnqueueOp schedules op for execution as soon as this worker's dispatch
// loop reaches it (at the worker's current virtual time), used by the
// coordinator to hand ops fanned out from the bus to a specific worker.
func (w *Worker) EnqueueOp(id string, op event.Op) {
	at := w.currentTime
	w.cal.Insert(at, event.Event{At: at, Kind: event.KindOp, Op: &event.OpPayload{ID: id, Op: op}})
}

// Host looks up a registered host by ID.
func (w *Worker) Host(id event.HostID) (*hostctx.Host, bool) {
	h, ok := w.hosts[id]
	return h, ok
}

// StallOp pushes op back onto stalled_ops, to be retried on a future
// heartbeat; both execute_op's own stall return and an externally
// discovered dependency failure use this entry point.
func (w *Worker) StallOp(id string, op event.Op) {
	w.stalledOps.PushBack(stalledOp{id: id, op: op})
}

// Complete transitions the worker to Complete mode, e.g. once the
// coordinator has observed every expected EndOp has drained.
func (w *Worker) Complete() { w.mode = ModeComplete }

// Fail transitions the worker to Error mode (abortsim, §4.7).
func (w *Worker) Fail(err error) {
	w.mode = ModeError
	w.err = err
}

// BeginSimulating transitions Spooling → Simulating and schedules the
// first ticktock heartbeat event.
func (w *Worker) BeginSimulating() {
	if w.mode != ModeSpooling {
		return
	}
	w.mode = ModeSimulating
	w.scheduleHeartbeat()
}

func (w *Worker) scheduleHeartbeat() {
	if w.heartbeatPending {
		return
	}
	at := w.currentTime.Add(w.cfg.HeartbeatInterval)
	w.cal.Insert(at, event.Event{At: at, Kind: event.KindHeartbeat, Heartbeat: &event.HeartbeatPayload{}})
	w.heartbeatPending = true
}

// Status reports the outcome of one Heartbeat call.
type Status struct {
	Mode       Mode
	Dispatched int
	Window     vtime.Time
	Stalled    bool
}

// Heartbeat runs one bounded batch per §4.5's pseudocode:
//  1. not Simulating → blocked.
//  2. drain stalled_ops in order, stopping at the first still-stalled entry.
//  3. sync_time() to refresh the window and broadcast state if due.
//  4. dispatch events with at ≤ window, up to cfg.BatchSize, stopping early
//     if mode changes.
//  5. return the resulting status.
func (w *Worker) Heartbeat() (Status, error) {
	if w.mode != ModeSimulating {
		return Status{Mode: w.mode}, ErrNotSimulating
	}

	w.drainStalledOps()

	window, bcast := w.proto.SyncTime(w.currentTime, w.cal.PeekMinTime(), w.stalledOps.Len() > 0)
	if bcast != nil && w.hooks.OnBroadcastState != nil {
		w.hooks.OnBroadcastState(*bcast)
	}

	dispatched := 0
	for dispatched < w.cfg.BatchSize {
		peek := w.cal.PeekMinTime()
		if !peek.Valid() || !window.Valid() || !(peek.Before(window) || peek == window) {
			break
		}
		ev, ok := w.cal.PopMin()
		if !ok {
			break
		}
		if ev.At.Before(w.currentTime) {
			w.Fail(fmt.Errorf("%w: at=%s current=%s", ErrBackwardsTime, ev.At, w.currentTime))
			break
		}
		w.currentTime = ev.At
		w.dispatch(ev)
		dispatched++
		if w.mode != ModeSimulating {
			break
		}
	}

	return Status{Mode: w.mode, Dispatched: dispatched, Window: window, Stalled: w.stalledOps.Len() > 0}, w.err
}

func (w *Worker) drainStalledOps() {
	for {
		front := w.stalledOps.Front()
		if front == nil {
			return
		}
		entry := front.Value.(stalledOp)
		w.stalledOps.Remove(front)

		stalled, err := w.hooks.ExecOp(entry.id, entry.op)
		if err != nil {
			w.Fail(err)
			return
		}
		if stalled {
			w.stalledOps.PushFront(entry)
			return
		}
	}
}

func (w *Worker) dispatch(ev event.Event) {
	switch ev.Kind {
	case event.KindTimer:
		w.dispatchTimer(ev.Timer)
	case event.KindPacket:
		w.dispatchPacket(ev.Packet)
	case event.KindOp:
		w.dispatchOp(ev.Op)
	case event.KindHeartbeat:
		w.dispatchHeartbeat()
	case event.KindNotify:
		w.dispatchNotify(ev.Notify)
	default:
		w.Log.Warn("worker: dropping event of unknown kind", "kind", ev.Kind)
	}
}

func (w *Worker) dispatchTimer(p *event.TimerPayload) {
	item, ok := w.timers.Consume(p.Host, p.TimerID)
	if !ok || !item.Valid() {
		return
	}
	host, ok := w.hosts[p.Host]
	if !ok || host.Destroyed() {
		return
	}
	w.switcher.Invoke(host, w.services, func(api *hostctx.GuestAPI) {
		item.Callback(item.ID, item.Arg)
	})
}

func (w *Worker) dispatchPacket(p *event.PacketPayload) {
	if w.hooks.OnPacketOut == nil {
		return
	}
	host, ok := w.hosts[p.Host]
	if !ok || host.Destroyed() {
		return
	}
	w.hooks.OnPacketOut(p.Host, p.Data)
}

func (w *Worker) dispatchOp(p *event.OpPayload) {
	if p == nil || w.hooks.ExecOp == nil {
		return
	}
	stalled, err := w.hooks.ExecOp(p.ID, p.Op)
	if err != nil {
		w.Fail(err)
		return
	}
	if stalled {
		w.StallOp(p.ID, p.Op)
	}
}

func (w *Worker) dispatchHeartbeat() {
	w.heartbeatPending = false
	w.Log.Debug("worker: heartbeat tick", "worker", w.ID, "time", w.currentTime)
	if w.mode == ModeSimulating {
		w.scheduleHeartbeat()
	}
}

func (w *Worker) dispatchNotify(p *event.NotifyPayload) {
	host, ok := w.hosts[p.Host]
	if !ok || host.Destroyed() {
		return
	}
	w.vepoll.Dispatch(p.Host, p.SockD, func(h event.HostID, sockd int, canRead, canWrite, readFirst bool) {
		w.switcher.Invoke(host, w.services, func(api *hostctx.GuestAPI) {
			host.Facade.SocketReady(api, sockd, canRead, canWrite, readFirst)
		})
	})
}
