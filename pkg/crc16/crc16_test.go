package crc16

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministic(t *testing.T) {
	data := []byte{0x06, 0x00, 0x01, 0x82, 0x10, 0x00, 0xDE, 0xAD}
	require.Equal(t, Compute(data), Compute(data))
}

func TestComputeEmpty(t *testing.T) {
	require.Equal(t, uint16(0), Compute(nil))
}

func TestUpdateMatchesSingleShotCompute(t *testing.T) {
	data := []byte{0x06, 0x00, 0x01, 0x82, 0x10, 0x00, 0xDE, 0xAD}
	whole := Compute(data)

	split := Update(Update(0, data[:3]), data[3:])
	require.Equal(t, whole, split)
}

func TestComputeDetectsSingleBitFlip(t *testing.T) {
	data := []byte{0x06, 0x00, 0x01, 0x82, 0x10, 0x00, 0xDE, 0xAD}
	corrupt := append([]byte(nil), data...)
	corrupt[4] ^= 0x01

	require.NotEqual(t, Compute(data), Compute(corrupt))
}
