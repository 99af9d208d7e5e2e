package packetcodec

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTripsAddressing(t *testing.T) {
	want := Addressing{
		SrcMAC:  net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:  net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		SrcIP:   net.IPv4(10, 0, 0, 1).To4(),
		DstIP:   net.IPv4(10, 0, 0, 2).To4(),
		SrcPort: 5000,
		DstPort: 53,
	}

	raw, err := Encode(want, []byte("hello"))
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, want.SrcMAC, got.SrcMAC)
	require.Equal(t, want.DstMAC, got.DstMAC)
	require.True(t, want.SrcIP.Equal(got.SrcIP))
	require.True(t, want.DstIP.Equal(got.DstIP))
	require.Equal(t, want.SrcPort, got.SrcPort)
	require.Equal(t, want.DstPort, got.DstPort)
	require.Equal(t, "UDP", got.Protocol)
}

func TestDecode_EmptyPacketErrors(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
}
