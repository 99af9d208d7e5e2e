// Package coordinator implements the slave/master coordinator (C7): the
// fan-out of ops over the bus to a slave's worker pool, round-robin
// placement of CreateNode ops, broadcast of everything else, and the
// upward completion aggregation (worker → slave → master) described in
// spec.md §4.7.
package coordinator

import (
	"bytes"
	"encoding/gob"

	"github.com/parasim/parasim/internal/event"
)

// OpKindCreateNode identifies node-placement ops, the only op type the
// router places on a single destination rather than broadcasting
// (§4.7: "a worker-turn round-robin dispatches CreateNode ops ... and
// broadcasts everything else").
const OpKindCreateNode = "create_node"

// CreateNode places a new simulated host running Plugin on whichever
// worker the router assigns it to.
type CreateNode struct {
	NodeID string
	Plugin string
	Args   []string
}

// OpKind implements event.Op.
func (CreateNode) OpKind() string { return OpKindCreateNode }

// EndOp marks the end of the operation stream; once every worker has
// drained it without stalling, the owning slave reports DoneSlave.
type EndOp struct{}

// OpKind implements event.Op.
func (EndOp) OpKind() string { return "end_op" }

func init() {
	gob.Register(CreateNode{})
	gob.Register(EndOp{})
}

// opEnvelope carries an event.Op through gob, which can encode an
// interface value as long as every concrete type that may appear behind
// it is registered (above). Op encoding is deliberately kept off the
// bus's own wire format (bus/wire.go's hand-rolled protobuf encoding,
// reserved for the fixed frame envelope) since the set of op types is
// open-ended and gob's interface support is the simplest correct fit the
// pack offers for that shape (see DESIGN.md).
type opEnvelope struct {
	Op event.Op
}

// EncodeOp serializes op for an Op frame's encoded_op field.
func EncodeOp(op event.Op) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&opEnvelope{Op: op}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeOp deserializes an Op frame's encoded_op field back into an
// event.Op.
func DecodeOp(b []byte) (event.Op, error) {
	var env opEnvelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return nil, err
	}
	return env.Op, nil
}
