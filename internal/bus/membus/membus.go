// Package membus implements an in-memory bus.Bus for single-process runs
// and tests: a shared hub of buffered channels, one per named endpoint,
// with delivery order preserved per sender.
package membus

import (
	"context"
	"errors"
	"sync"

	"github.com/parasim/parasim/internal/bus"
)

// ErrClosed is returned by Send/Recv once the endpoint has been closed.
var ErrClosed = errors.New("membus: endpoint closed")

const inboxCapacity = 256

// Hub is the shared registry every Endpoint sends into; it must be
// created once per simulated run and handed to every worker/slave/master
// endpoint that needs to address the others by name.
type Hub struct {
	mu     sync.Mutex
	inboxs map[string]chan bus.Frame
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{inboxs: make(map[string]chan bus.Frame)}
}

// Join registers name and returns its Endpoint. Joining the same name
// twice replaces the previous endpoint's inbox, matching the semantics of
// a process restarting under the same identity.
func (h *Hub) Join(name string) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan bus.Frame, inboxCapacity)
	h.inboxs[name] = ch
	return &Endpoint{hub: h, name: name, inbox: ch, closed: make(chan struct{})}
}

func (h *Hub) inboxFor(name string) (chan bus.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.inboxs[name]
	return ch, ok
}

// Endpoint is one hub member's view of the bus: a bus.Bus implementation
// backed by the hub's channels.
type Endpoint struct {
	hub   *Hub
	name  string
	inbox chan bus.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

// Frame is an alias kept local so this file reads naturally; it is the
// same type as bus.Frame.
type Frame = bus.Frame

// Send delivers f to the named destination's inbox, blocking only if that
// inbox is full (backpressure), or returning ctx.Err() if ctx is
// cancelled first.
func (e *Endpoint) Send(ctx context.Context, to string, f Frame) error {
	ch, ok := e.hub.inboxFor(to)
	if !ok {
		return errors.New("membus: unknown endpoint " + to)
	}
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	select {
	case ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return ErrClosed
	}
}

// Recv blocks for the next inbound frame.
func (e *Endpoint) Recv(ctx context.Context) (Frame, error) {
	select {
	case <-e.closed:
		return Frame{}, ErrClosed
	default:
	}
	select {
	case f := <-e.inbox:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-e.closed:
		return Frame{}, ErrClosed
	}
}

// TryRecv returns the next inbound frame without blocking.
func (e *Endpoint) TryRecv() (Frame, bool) {
	select {
	case f := <-e.inbox:
		return f, true
	default:
		return Frame{}, false
	}
}

// Close marks the endpoint closed; further Send/Recv calls fail.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

var _ bus.Bus = (*Endpoint)(nil)
