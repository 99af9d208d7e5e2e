// Package bus defines the reliable FIFO-per-sender transport (C8) that
// carries frames between workers, slaves and the master, independent of
// whether they share a process (see bus/membus) or not (see
// bus/grpcbus). Frame shapes mirror spec.md §4.7's framing contract
// exactly: (layer, frame_type, src_worker, payload).
package bus

import "context"

// FrameType discriminates a Frame's payload, matching the frame types
// named in §4.7.
type FrameType int32

const (
	FrameUnknown FrameType = iota
	FrameStart
	FrameOp
	FrameTrack
	FrameState
	FramePacket
	FrameDoneWorker
	FrameDoneSlave
	FrameError
)

func (t FrameType) String() string {
	switch t {
	case FrameStart:
		return "start"
	case FrameOp:
		return "op"
	case FrameTrack:
		return "track"
	case FrameState:
		return "state"
	case FramePacket:
		return "packet"
	case FrameDoneWorker:
		return "done_worker"
	case FrameDoneSlave:
		return "done_slave"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// StartFrame carries the topology-wide latency bounds every worker needs
// before it can compute windows (§4.6).
type StartFrame struct {
	MinLatency uint64
	MaxLatency uint64
}

// OpFrame carries one coordinator-encoded operation, correlated by ID for
// completion reporting.
type OpFrame struct {
	ID      string
	Encoded []byte
}

// TrackFrame reports a host's placement and link characteristics, feeding
// the resolver and bandwidth scheduler stubs.
type TrackFrame struct {
	NetworkID uint64
	Addr      string
	Hostname  string
	KbpsUp    uint64
	KbpsDown  uint64
}

// StateFrame is the safe-time protocol's published 4-tuple (§4.6).
type StateFrame struct {
	Src     string
	Last    uint64
	Current uint64
	Next    uint64
	Window  uint64
}

// PacketFrame is opaque to the core beyond host addressing; the codec and
// transport state machines live entirely outside this package.
type PacketFrame struct {
	Host string
	Data []byte
}

// DoneWorkerFrame/DoneSlaveFrame carry no payload; their presence on the
// wire is the signal.
type DoneWorkerFrame struct{}
type DoneSlaveFrame struct{}

// ErrorFrame reports a fatal condition, e.g. from abortsim (§4.7).
type ErrorFrame struct {
	Message string
}

// Frame is the single envelope type exchanged over a Bus. Exactly one of
// the payload fields is non-nil, selected by Type.
type Frame struct {
	Layer     int32
	Type      FrameType
	SrcWorker string

	Start      *StartFrame
	Op         *OpFrame
	Track      *TrackFrame
	State      *StateFrame
	Packet     *PacketFrame
	DoneWorker *DoneWorkerFrame
	DoneSlave  *DoneSlaveFrame
	Error      *ErrorFrame
}

// Bus is a reliable, FIFO-per-sender message channel between one endpoint
// (a worker, a slave, or the master) and its peers. Implementations must
// preserve send order per sender but make no ordering guarantee across
// distinct senders (matching §5: "no shared mutable state between
// workers; all cross-worker communication is message passing").
type Bus interface {
	// Send delivers f to the named destination endpoint.
	Send(ctx context.Context, to string, f Frame) error

	// Recv blocks until the next inbound frame is available, or ctx is
	// cancelled.
	Recv(ctx context.Context) (Frame, error)

	// TryRecv returns the next inbound frame without blocking, or
	// ok=false if none is pending — used by the worker loop's
	// non-blocking drain between heartbeat batches (§4.5).
	TryRecv() (f Frame, ok bool)

	// Close releases the endpoint's resources. Further Send/Recv calls
	// return an error.
	Close() error
}
