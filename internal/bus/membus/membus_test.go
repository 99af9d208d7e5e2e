package membus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/bus"
)

func TestEndpoint_SendRecvPreservesFIFOPerSender(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Send(ctx, "b", bus.Frame{Type: bus.FrameDoneWorker, SrcWorker: "a"}))
	require.NoError(t, a.Send(ctx, "b", bus.Frame{Type: bus.FrameDoneSlave, SrcWorker: "a"}))

	first, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, bus.FrameDoneWorker, first.Type)

	second, ok := b.TryRecv()
	require.True(t, ok)
	require.Equal(t, bus.FrameDoneSlave, second.Type)
}

func TestEndpoint_SendToUnknownEndpointErrors(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	defer a.Close()

	err := a.Send(context.Background(), "ghost", bus.Frame{Type: bus.FrameDoneWorker})
	require.Error(t, err)
}

func TestEndpoint_RecvUnblocksOnClose(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")

	done := make(chan error, 1)
	go func() {
		_, err := a.Recv(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
