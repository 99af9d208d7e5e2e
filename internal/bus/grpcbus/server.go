// Package grpcbus implements bus.Bus over gRPC bidirectional streaming
// for multi-process runs: every client (a worker, a slave, or the
// master) dials one relay server and keeps a single persistent stream
// open; the server forwards each envelope to its named destination's
// stream. Reconnection after a dropped stream is governed by
// cenkalti/backoff/v4 on the client side (see client.go).
package grpcbus

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
)

// joinTo is the sentinel destination of a client's first envelope,
// registering its name with the relay before any real traffic flows.
const joinTo = "\x00join"

type peerConn struct {
	mu     sync.Mutex
	stream grpc.ServerStream
}

func (p *peerConn) send(env *envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream.SendMsg(env)
}

// Server is the relay: it accepts one stream per client and routes
// envelopes between them by destination name.
type Server struct {
	log *slog.Logger
	srv *grpc.Server

	mu    sync.Mutex
	peers map[string]*peerConn
}

// NewServer creates an unstarted relay server.
func NewServer(log *slog.Logger) *Server {
	s := &Server{log: log, peers: make(map[string]*peerConn)}
	s.srv = grpc.NewServer()
	s.srv.RegisterService(&serviceDesc, relayServerAdapter{s})
	return s
}

// relayServerAdapter exists only so *Server does not itself need to
// satisfy relayServer with a lowercase method colliding across files.
type relayServerAdapter struct{ s *Server }

func (a relayServerAdapter) relay(stream grpc.ServerStream) error { return a.s.relay(stream) }

// Serve blocks accepting connections on lis until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Stop gracefully shuts down the relay.
func (s *Server) Stop() {
	s.srv.GracefulStop()
}

func (s *Server) relay(stream grpc.ServerStream) error {
	var first envelope
	if err := stream.RecvMsg(&first); err != nil {
		return err
	}
	if first.To != joinTo || first.Frame.SrcWorker == "" {
		return fmt.Errorf("grpcbus: first envelope must be a join handshake")
	}
	name := first.Frame.SrcWorker

	conn := &peerConn{stream: stream}
	s.mu.Lock()
	s.peers[name] = conn
	s.mu.Unlock()
	s.log.Info("grpcbus: peer joined", "peer", name)

	defer func() {
		s.mu.Lock()
		if s.peers[name] == conn {
			delete(s.peers, name)
		}
		s.mu.Unlock()
		s.log.Info("grpcbus: peer left", "peer", name)
	}()

	for {
		var env envelope
		if err := stream.RecvMsg(&env); err != nil {
			return err
		}
		s.mu.Lock()
		dest, ok := s.peers[env.To]
		s.mu.Unlock()
		if !ok {
			s.log.Warn("grpcbus: dropping envelope for unknown peer", "to", env.To, "from", name)
			continue
		}
		if err := dest.send(&env); err != nil {
			s.log.Warn("grpcbus: failed forwarding envelope", "to", env.To, "err", err)
		}
	}
}
