package bus

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal and Unmarshal below hand-encode Frame using the protobuf wire
// format via protowire's primitives directly, rather than through
// generated message types — the frame shapes are small and fixed, and
// this keeps the core's only cross-process dependency on the wire format
// itself, not on a codegen step the module's build never runs. Field
// numbers are stable and never reused across releases of this format.
const (
	fieldLayer     = protowire.Number(1)
	fieldType      = protowire.Number(2)
	fieldSrc       = protowire.Number(3)
	fieldStart     = protowire.Number(4)
	fieldOp        = protowire.Number(5)
	fieldTrack     = protowire.Number(6)
	fieldState     = protowire.Number(7)
	fieldPacket    = protowire.Number(8)
	fieldDoneWork  = protowire.Number(9)
	fieldDoneSlave = protowire.Number(10)
	fieldError     = protowire.Number(11)
)

// Marshal encodes f as a protobuf-wire-compatible byte string.
func (f Frame) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldLayer, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Layer))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Type))
	b = protowire.AppendTag(b, fieldSrc, protowire.BytesType)
	b = protowire.AppendString(b, f.SrcWorker)

	switch f.Type {
	case FrameStart:
		if f.Start == nil {
			return nil, fmt.Errorf("bus: FrameStart requires Start payload")
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.Start.MinLatency)
		sub = protowire.AppendTag(sub, 2, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.Start.MaxLatency)
		b = protowire.AppendTag(b, fieldStart, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)

	case FrameOp:
		if f.Op == nil {
			return nil, fmt.Errorf("bus: FrameOp requires Op payload")
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendString(sub, f.Op.ID)
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendBytes(sub, f.Op.Encoded)
		b = protowire.AppendTag(b, fieldOp, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)

	case FrameTrack:
		if f.Track == nil {
			return nil, fmt.Errorf("bus: FrameTrack requires Track payload")
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.Track.NetworkID)
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendString(sub, f.Track.Addr)
		sub = protowire.AppendTag(sub, 3, protowire.BytesType)
		sub = protowire.AppendString(sub, f.Track.Hostname)
		sub = protowire.AppendTag(sub, 4, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.Track.KbpsUp)
		sub = protowire.AppendTag(sub, 5, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.Track.KbpsDown)
		b = protowire.AppendTag(b, fieldTrack, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)

	case FrameState:
		if f.State == nil {
			return nil, fmt.Errorf("bus: FrameState requires State payload")
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendString(sub, f.State.Src)
		sub = protowire.AppendTag(sub, 2, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.State.Last)
		sub = protowire.AppendTag(sub, 3, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.State.Current)
		sub = protowire.AppendTag(sub, 4, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.State.Next)
		sub = protowire.AppendTag(sub, 5, protowire.VarintType)
		sub = protowire.AppendVarint(sub, f.State.Window)
		b = protowire.AppendTag(b, fieldState, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)

	case FramePacket:
		if f.Packet == nil {
			return nil, fmt.Errorf("bus: FramePacket requires Packet payload")
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendString(sub, f.Packet.Host)
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendBytes(sub, f.Packet.Data)
		b = protowire.AppendTag(b, fieldPacket, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)

	case FrameDoneWorker:
		b = protowire.AppendTag(b, fieldDoneWork, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)

	case FrameDoneSlave:
		b = protowire.AppendTag(b, fieldDoneSlave, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)

	case FrameError:
		if f.Error == nil {
			return nil, fmt.Errorf("bus: FrameError requires Error payload")
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendString(sub, f.Error.Message)
		b = protowire.AppendTag(b, fieldError, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)

	default:
		return nil, fmt.Errorf("bus: unknown frame type %d", f.Type)
	}

	return b, nil
}

// Unmarshal decodes b (as produced by Marshal) into f.
func (f *Frame) Unmarshal(b []byte) error {
	*f = Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldLayer:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Layer = int32(v)
			b = b[n:]
		case fieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Type = FrameType(v)
			b = b[n:]
		case fieldSrc:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.SrcWorker = v
			b = b[n:]
		case fieldStart:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			p := &StartFrame{}
			if err := unmarshalStart(sub, p); err != nil {
				return err
			}
			f.Start = p
		case fieldOp:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			p := &OpFrame{}
			if err := unmarshalOp(sub, p); err != nil {
				return err
			}
			f.Op = p
		case fieldTrack:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			p := &TrackFrame{}
			if err := unmarshalTrack(sub, p); err != nil {
				return err
			}
			f.Track = p
		case fieldState:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			p := &StateFrame{}
			if err := unmarshalState(sub, p); err != nil {
				return err
			}
			f.State = p
		case fieldPacket:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			p := &PacketFrame{}
			if err := unmarshalPacket(sub, p); err != nil {
				return err
			}
			f.Packet = p
		case fieldDoneWork:
			_, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			f.DoneWorker = &DoneWorkerFrame{}
		case fieldDoneSlave:
			_, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			f.DoneSlave = &DoneSlaveFrame{}
		case fieldError:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			p := &ErrorFrame{}
			if err := unmarshalError(sub, p); err != nil {
				return err
			}
			f.Error = p
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func unmarshalStart(b []byte, p *StartFrame) error {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			p.MinLatency = v
		case 2:
			p.MaxLatency = v
		}
	}
	return nil
}

func unmarshalOp(b []byte, p *OpFrame) error {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.ID = v
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Encoded = append([]byte(nil), v...)
			b = b[n:]
		}
	}
	return nil
}

func unmarshalTrack(b []byte, p *TrackFrame) error {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.NetworkID = v
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Addr = v
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Hostname = v
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.KbpsUp = v
			b = b[n:]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.KbpsDown = v
			b = b[n:]
		}
	}
	return nil
}

func unmarshalState(b []byte, p *StateFrame) error {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Src = v
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Last = v
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Current = v
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Next = v
			b = b[n:]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Window = v
			b = b[n:]
		}
	}
	return nil
}

func unmarshalPacket(b []byte, p *PacketFrame) error {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Host = v
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Data = append([]byte(nil), v...)
			b = b[n:]
		}
	}
	return nil
}

func unmarshalError(b []byte, p *ErrorFrame) error {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Message = v
			b = b[n:]
		}
	}
	return nil
}
