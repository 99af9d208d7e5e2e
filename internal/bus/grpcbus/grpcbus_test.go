package grpcbus

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/bus"
)

func TestClient_RelaysFramesBetweenTwoPeers(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(log)
	go srv.Serve(lis)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := Dial(ctx, lis.Addr().String(), "worker-a", log)
	require.NoError(t, err)
	defer a.Close()

	b, err := Dial(ctx, lis.Addr().String(), "worker-b", log)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(ctx, "worker-b", bus.Frame{
		Type:      bus.FrameState,
		SrcWorker: "worker-a",
		State:     &bus.StateFrame{Src: "worker-a", Last: 1, Current: 2, Next: 3, Window: 4},
	}))

	got, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, bus.FrameState, got.Type)
	require.Equal(t, "worker-a", got.State.Src)
	require.Equal(t, uint64(4), got.State.Window)
}
