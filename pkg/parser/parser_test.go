package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/araisrobo/wou/pkg/frame"
	"github.com/araisrobo/wou/pkg/shadow"
	"github.com/araisrobo/wou/pkg/window"
)

const testMaxPsize = 64

func buildWireFrame(t *testing.T, tid byte, addr uint16, data []byte) []byte {
	t.Helper()
	f := frame.New(testMaxPsize)
	require.NoError(t, f.Append(testMaxPsize, frame.WR, addr, data))
	f.Seal(tid)
	out := make([]byte, len(f.Bytes()))
	copy(out, f.Bytes())
	return out
}

func TestFeedSingleFrameAdvancesWindowAndShadow(t *testing.T) {
	w := window.New(4, testMaxPsize)
	reg := shadow.New(64)
	p := New(w, reg)

	wire := buildWireFrame(t, 1, 0x0010, []byte{0xAB, 0xCD})
	p.Feed(wire)

	got, err := reg.Read(0x0010, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB, 0xCD}, got)

	// Nothing was staged for sending, so Sn is still at its start: Advance
	// moves only Sb, Sm and tidSb.
	sb, sn, _, tidSb, _, _ := w.Cursors()
	require.Equal(t, byte(1), sb)
	require.Equal(t, byte(0), sn)
	require.Equal(t, byte(1), tidSb)
	require.Equal(t, 0, p.Pending())
}

func TestFeedInArbitraryChunksMatchesSingleShot(t *testing.T) {
	wire := buildWireFrame(t, 1, 0x0020, []byte{1, 2, 3, 4})

	w1 := window.New(4, testMaxPsize)
	reg1 := shadow.New(64)
	p1 := New(w1, reg1)
	p1.Feed(wire)

	w2 := window.New(4, testMaxPsize)
	reg2 := shadow.New(64)
	p2 := New(w2, reg2)
	for _, b := range wire {
		p2.Feed([]byte{b})
	}

	got1, err := reg1.Read(0x0020, 4)
	require.NoError(t, err)
	got2, err := reg2.Read(0x0020, 4)
	require.NoError(t, err)
	require.Equal(t, got1, got2)

	_, sn1, _, tidSb1, _, _ := w1.Cursors()
	_, sn2, _, tidSb2, _, _ := w2.Cursors()
	require.Equal(t, sn1, sn2)
	require.Equal(t, tidSb1, tidSb2)
}

func TestCRCMismatchDropsByteAndResyncs(t *testing.T) {
	w := window.New(4, testMaxPsize)
	reg := shadow.New(64)
	p := New(w, reg)

	wire := buildWireFrame(t, 1, 0x0010, []byte{0xAB, 0xCD})
	corrupt := append([]byte{}, wire...)
	corrupt[len(corrupt)-3] ^= 0xFF // flip a payload byte, leave CRC as-is

	p.Feed(corrupt)

	require.Equal(t, uint64(1), p.CRCErrors)
	_, err := reg.Read(0x0010, 2)
	require.NoError(t, err) // address was never written: still zero

	_, _, _, tidSb, _, _ := w.Cursors()
	require.Equal(t, byte(0), tidSb, "window must not advance on a corrupted frame")
}

func TestNoisePrefixBeforeFrameStillSyncs(t *testing.T) {
	w := window.New(4, testMaxPsize)
	reg := shadow.New(64)
	p := New(w, reg)

	wire := buildWireFrame(t, 1, 0x0030, []byte{0x42})
	noisy := append([]byte{0x00, 0xFF, 0xA5, 0x00}, wire...)

	p.Feed(noisy)

	got, err := reg.Read(0x0030, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, got)
}

func TestUnexpectedTIDFlushesAndResetsSn(t *testing.T) {
	w := window.New(4, testMaxPsize)
	reg := shadow.New(64)
	p := New(w, reg)

	// winSize=4 and tidSb starts at 0: a tidR of 5 yields advance=5, which
	// is outside (0, winSize) and must be treated as an unexpected TID.
	wire := buildWireFrame(t, 5, 0x0010, []byte{0xAB})
	p.Feed(wire)

	require.Equal(t, uint64(1), p.UnexpectedTIDs)
	require.Equal(t, 0, p.Pending())

	sb, sn, _, tidSb, _, _ := w.Cursors()
	require.Equal(t, sb, sn)
	require.Equal(t, byte(5), tidSb)

	_, err := reg.Read(0x0010, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, mustRead(t, reg, 0x0010, 1))
}

func mustRead(t *testing.T, reg *shadow.Map, addr uint16, n uint16) []byte {
	t.Helper()
	got, err := reg.Read(addr, n)
	require.NoError(t, err)
	return got
}
