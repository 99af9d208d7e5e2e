package grpcbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/parasim/parasim/internal/bus"
)

// ErrClosed is returned once a Client has been closed.
var ErrClosed = errors.New("grpcbus: client closed")

const inboxCapacity = 256

// Client is a bus.Bus endpoint backed by one persistent gRPC stream to a
// relay Server. A dropped stream is transparently redialed with
// exponential backoff (cenkalti/backoff/v4); callers see only a Send/Recv
// pair that blocks during reconnection rather than an error, matching
// the "reliable FIFO" contract of bus.Bus.
type Client struct {
	name   string
	target string
	log    *slog.Logger

	conn *grpc.ClientConn

	mu     sync.Mutex
	stream grpc.ClientStream

	inbox  chan bus.Frame
	closed chan struct{}
	once   sync.Once
}

// Dial connects to target, registers as name, and starts the background
// receive loop. The returned Client is ready for Send/Recv immediately;
// the initial stream handshake happens synchronously so a dial failure is
// reported to the caller rather than only surfacing on first use.
func Dial(ctx context.Context, target, name string, log *slog.Logger) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}

	c := &Client{
		name:   name,
		target: target,
		log:    log,
		conn:   conn,
		inbox:  make(chan bus.Frame, inboxCapacity),
		closed: make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.recvLoop()
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Relay",
		ServerStreams: true,
		ClientStreams: true,
	}, relayMethod)
	if err != nil {
		return err
	}
	join := &envelope{To: joinTo, Frame: bus.Frame{SrcWorker: c.name}}
	if err := stream.SendMsg(join); err != nil {
		return err
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	return nil
}

// reconnect redials with exponential backoff until it succeeds or the
// client is closed.
func (c *Client) reconnect() {
	b := backoff.NewExponentialBackOff()
	op := func() error {
		select {
		case <-c.closed:
			return backoff.Permanent(ErrClosed)
		default:
		}
		return c.connect(context.Background())
	}
	if err := backoff.Retry(op, b); err != nil && c.log != nil {
		c.log.Error("grpcbus: giving up reconnecting", "target", c.target, "err", err)
	}
}

func (c *Client) recvLoop() {
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()

		var env envelope
		if err := stream.RecvMsg(&env); err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			if c.log != nil {
				c.log.Warn("grpcbus: stream recv failed, reconnecting", "err", err)
			}
			c.reconnect()
			continue
		}

		select {
		case c.inbox <- env.Frame:
		case <-c.closed:
			return
		}
	}
}

// Send transmits f to the named destination, retrying once through a
// reconnect if the current stream has gone bad.
func (c *Client) Send(ctx context.Context, to string, f bus.Frame) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	env := &envelope{To: to, Frame: f}

	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	if err := stream.SendMsg(env); err != nil {
		c.reconnect()
		c.mu.Lock()
		stream = c.stream
		c.mu.Unlock()
		return stream.SendMsg(env)
	}
	return nil
}

// Recv blocks until the next inbound frame or ctx cancellation.
func (c *Client) Recv(ctx context.Context) (bus.Frame, error) {
	select {
	case f := <-c.inbox:
		return f, nil
	case <-ctx.Done():
		return bus.Frame{}, ctx.Err()
	case <-c.closed:
		return bus.Frame{}, ErrClosed
	}
}

// TryRecv returns the next inbound frame without blocking.
func (c *Client) TryRecv() (bus.Frame, bool) {
	select {
	case f := <-c.inbox:
		return f, true
	default:
		return bus.Frame{}, false
	}
}

// Close tears down the stream and the underlying connection.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.conn.Close()
}

var _ bus.Bus = (*Client)(nil)
