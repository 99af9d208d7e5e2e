// Package event defines the tagged union of event payloads dispatched by
// the worker loop, replacing the source implementation's opaque
// callback-plus-void-pointer pattern with a Go sum type resolved by a
// variant match at dispatch time.
package event

import "github.com/parasim/parasim/internal/vtime"

// HostID identifies a simulated host. Hosts are addressed by this stable ID
// rather than by a process-wide pointer, so timers and events can reference
// a host weakly and survive its destruction as no-ops.
type HostID string

// Kind discriminates the payload carried by an Event. The data model in the
// governing specification enumerates Timer, Packet, Op and Heartbeat; Notify
// is an engine-internal addition (see DESIGN.md) needed to schedule vepoll's
// at-most-one readiness notification through the same calendar.
type Kind int

const (
	KindTimer Kind = iota
	KindPacket
	KindOp
	KindHeartbeat
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindPacket:
		return "packet"
	case KindOp:
		return "op"
	case KindHeartbeat:
		return "heartbeat"
	case KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// TimerPayload identifies the timer item to fire; the item itself (callback,
// arg, validity) lives in the timer manager, keyed by (Host, TimerID).
type TimerPayload struct {
	Host    HostID
	TimerID uint32
}

// PacketPayload carries an inbound packet destined for Host. Packet is
// deliberately opaque here — the codec and transport state machines that
// produce/consume it are out of the core's scope.
type PacketPayload struct {
	Host HostID
	Data []byte
}

// Op is implemented by every operation the coordinator fans out to workers
// (CreateNode, EndOp). Kept as an interface here so this package
// never imports the coordinator package that defines concrete ops.
type Op interface {
	OpKind() string
}

// OpPayload wraps an Op along with a correlation ID used to report
// completion back to the coordinator.
type OpPayload struct {
	ID string
	Op Op
}

// HeartbeatPayload carries no data; heartbeat events exist purely to wake
// the worker on a fixed virtual-time cadence (the ticktock mechanism).
type HeartbeatPayload struct{}

// NotifyPayload identifies the vepoll record whose pending notification
// should fire.
type NotifyPayload struct {
	Host  HostID
	SockD int
}

// Event is immutable after insertion into the calendar: ownership transfers
// from the calendar to the dispatching handler on dequeue, which is
// responsible for any cleanup.
type Event struct {
	At   vtime.Time
	Kind Kind

	Timer     *TimerPayload
	Packet    *PacketPayload
	Op        *OpPayload
	Heartbeat *HeartbeatPayload
	Notify    *NotifyPayload
}
