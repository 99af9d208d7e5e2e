package grpcbus

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as a gRPC content-subtype so both client and
// server negotiate our hand-rolled wire format instead of the default
// protobuf-generated-message codec, which this package's frame shapes
// never need (see bus/wire.go).
const codecName = "parasimframe"

type frameCodec struct{}

func (frameCodec) Marshal(v any) ([]byte, error) {
	env, ok := v.(*envelope)
	if !ok {
		return nil, fmt.Errorf("grpcbus: codec cannot marshal %T", v)
	}
	return env.marshal()
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	env, ok := v.(*envelope)
	if !ok {
		return fmt.Errorf("grpcbus: codec cannot unmarshal into %T", v)
	}
	return env.unmarshal(data)
}

func (frameCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(frameCodec{})
}
