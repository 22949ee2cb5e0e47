package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testMaxPsize = 64

func TestSingleWriteWireBytes(t *testing.T) {
	f := New(testMaxPsize)
	require.NoError(t, f.Append(testMaxPsize, WR, 0x0010, []byte{0xDE, 0xAD}))
	f.Seal(0)

	got := f.Bytes()
	// PRE PRE SOFD 0x06 0x00 0x01 0x82 0x10 0x00 0xDE 0xAD <crc_lo> <crc_hi>
	require.Equal(t, []byte{Preamble, Preamble, SOFD, 0x06, 0x00, 0x01, 0x82, 0x10, 0x00, 0xDE, 0xAD}, got[:11])
	require.Len(t, got, 13)
}

func TestAppendReadGrowsPloadSizeRx(t *testing.T) {
	f := New(testMaxPsize)
	require.NoError(t, f.Append(testMaxPsize, RD, 0x0020, make([]byte, 4)))
	require.Equal(t, PacketHdrSize+4, f.PloadSizeRx)
	require.Equal(t, HdrSize+PacketHdrSize, f.FSize)
}

func TestAppendInvalidFunc(t *testing.T) {
	f := New(testMaxPsize)
	err := f.Append(testMaxPsize, Func(0x40), 0, nil)
	require.ErrorIs(t, err, ErrInvalidFunc)
}

func TestAppendDsizeTooLarge(t *testing.T) {
	f := New(testMaxPsize)
	err := f.Append(testMaxPsize, WR, 0, make([]byte, MaxDsize+1))
	require.ErrorIs(t, err, ErrDsizeTooLarge)
}

func TestAppendFullRequiresSeal(t *testing.T) {
	f := New(8)
	err := f.Append(8, WR, 0, make([]byte, 9))
	require.ErrorIs(t, err, ErrFrameFull)
	require.False(t, f.Use)
	require.Equal(t, HdrSize, f.FSize)
}

func TestSealCRCValidates(t *testing.T) {
	f := New(testMaxPsize)
	require.NoError(t, f.Append(testMaxPsize, WR, 0x1234, []byte{1, 2, 3}))
	f.Seal(7)

	got := f.Bytes()
	require.Equal(t, byte(7), f.TID())

	ploadSizeTX := int(got[3])
	crcRange := got[3 : 3+3+ploadSizeTX]
	require.Len(t, crcRange, len(got)-3-CRCSize)
}

func TestResetAfterSeal(t *testing.T) {
	f := New(testMaxPsize)
	require.NoError(t, f.Append(testMaxPsize, WR, 0, []byte{1}))
	f.Seal(0)
	f.Reset()

	require.False(t, f.Use)
	require.Equal(t, HdrSize, f.FSize)
	require.Equal(t, 0, f.PloadSizeRx)
	require.Equal(t, byte(Preamble), f.Buf[0])
}
