package grpcbus

import "google.golang.org/grpc"

// relayServer is the interface grpc.ServiceDesc.HandlerType points at; the
// real implementation lives on *Server (see server.go). There is exactly
// one streaming method, modeled by hand the way protoc-gen-go-grpc would
// generate it for a single bidi-streaming RPC.
type relayServer interface {
	relay(stream grpc.ServerStream) error
}

func relayStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(relayServer).relay(stream)
}

// serviceDesc describes the single-method "Bus" service: one
// bidirectional stream carrying envelopes in both directions.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "parasim.bus.Bus",
	HandlerType: (*relayServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Relay",
			Handler:       relayStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "internal/bus/grpcbus/bus.proto",
}

const relayMethod = "/parasim.bus.Bus/Relay"
