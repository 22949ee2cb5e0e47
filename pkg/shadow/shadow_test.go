package shadow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyThenRead(t *testing.T) {
	m := New(64)
	require.NoError(t, m.Apply(0x0010, []byte{0xDE, 0xAD}))

	got, err := m.Read(0x0010, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD}, got)
}

func TestReadReturnsCopy(t *testing.T) {
	m := New(64)
	require.NoError(t, m.Apply(0x0000, []byte{0x01, 0x02}))

	got, err := m.Read(0x0000, 2)
	require.NoError(t, err)
	got[0] = 0xFF

	got2, err := m.Read(0x0000, 2)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), got2[0])
}

func TestApplyOutOfRange(t *testing.T) {
	m := New(4)
	err := m.Apply(2, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestReadOutOfRange(t *testing.T) {
	m := New(4)
	_, err := m.Read(3, 4)
	require.Error(t, err)
}
