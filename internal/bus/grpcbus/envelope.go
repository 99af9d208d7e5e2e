package grpcbus

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/parasim/parasim/internal/bus"
)

// envelope is the wire unit exchanged over the relay stream: the bare
// bus.Frame plus the destination endpoint name the relay server needs to
// route on, since bus.Bus.Send's "to" argument has no home on Frame
// itself.
type envelope struct {
	To    string
	Frame bus.Frame
}

const (
	envFieldTo    = protowire.Number(1)
	envFieldFrame = protowire.Number(2)
)

func (e envelope) marshal() ([]byte, error) {
	frameBytes, err := e.Frame.Marshal()
	if err != nil {
		return nil, err
	}
	var b []byte
	b = protowire.AppendTag(b, envFieldTo, protowire.BytesType)
	b = protowire.AppendString(b, e.To)
	b = protowire.AppendTag(b, envFieldFrame, protowire.BytesType)
	b = protowire.AppendBytes(b, frameBytes)
	return b, nil
}

func (e *envelope) unmarshal(b []byte) error {
	*e = envelope{}
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case envFieldTo:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.To = v
			b = b[n:]
		case envFieldFrame:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := e.Frame.Unmarshal(v); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, protowire.BytesType, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
