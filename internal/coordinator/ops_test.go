package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOp_CreateNode(t *testing.T) {
	want := CreateNode{NodeID: "n1", Plugin: "echo", Args: []string{"-v"}}
	encoded, err := EncodeOp(want)
	require.NoError(t, err)

	got, err := DecodeOp(encoded)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeDecodeOp_EndOp(t *testing.T) {
	encoded, err := EncodeOp(EndOp{})
	require.NoError(t, err)

	got, err := DecodeOp(encoded)
	require.NoError(t, err)
	require.Equal(t, EndOp{}, got)
}
