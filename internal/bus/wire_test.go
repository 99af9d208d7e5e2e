package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_MarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Frame{
		{Layer: 1, Type: FrameStart, SrcWorker: "w1", Start: &StartFrame{MinLatency: 5, MaxLatency: 500}},
		{Layer: 1, Type: FrameOp, SrcWorker: "w1", Op: &OpFrame{ID: "op-1", Encoded: []byte{1, 2, 3}}},
		{Layer: 1, Type: FrameTrack, SrcWorker: "w1", Track: &TrackFrame{NetworkID: 7, Addr: "10.0.0.1", Hostname: "h1", KbpsUp: 100, KbpsDown: 200}},
		{Layer: 1, Type: FrameState, SrcWorker: "w1", State: &StateFrame{Src: "w1", Last: 10, Current: 20, Next: 30, Window: 40}},
		{Layer: 1, Type: FramePacket, SrcWorker: "w1", Packet: &PacketFrame{Host: "h1", Data: []byte("payload")}},
		{Layer: 1, Type: FrameDoneWorker, SrcWorker: "w1", DoneWorker: &DoneWorkerFrame{}},
		{Layer: 1, Type: FrameDoneSlave, SrcWorker: "w1", DoneSlave: &DoneSlaveFrame{}},
		{Layer: 1, Type: FrameError, SrcWorker: "w1", Error: &ErrorFrame{Message: "boom"}},
	}

	for _, want := range cases {
		encoded, err := want.Marshal()
		require.NoError(t, err)

		var got Frame
		require.NoError(t, got.Unmarshal(encoded))
		require.Equal(t, want, got)
	}
}

func TestFrame_UnmarshalEmptyBytesForPacketData(t *testing.T) {
	want := Frame{Type: FramePacket, Packet: &PacketFrame{Host: "h1"}}
	encoded, err := want.Marshal()
	require.NoError(t, err)

	var got Frame
	require.NoError(t, got.Unmarshal(encoded))
	require.Equal(t, "h1", got.Packet.Host)
	require.Empty(t, got.Packet.Data)
}
