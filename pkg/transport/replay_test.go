package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/araisrobo/wou/pkg/frame"
	"github.com/araisrobo/wou/pkg/parser"
	"github.com/araisrobo/wou/pkg/shadow"
	"github.com/araisrobo/wou/pkg/transporttest"
	"github.com/araisrobo/wou/pkg/usbendpoint"
	"github.com/araisrobo/wou/pkg/window"
)

// pumpUntilTimeout drives Send/Recv passes, napping nap between each, until
// a retransmit timeout fires (or maxIters is exhausted). It returns the
// instant TxTimeouts increments so a caller chaining further pumps doesn't
// drift into a second, unintended timeout.
func pumpUntilTimeout(t *testing.T, s *Scheduler, nap time.Duration, maxIters int) {
	t.Helper()
	for i := 0; i < maxIters; i++ {
		require.NoError(t, s.Send())
		require.NoError(t, s.Recv())
		if s.TxTimeouts > 0 {
			return
		}
		time.Sleep(nap)
	}
	t.Fatalf("no retransmit timeout after %d iterations", maxIters)
}

// pumpPasses drives a fixed number of Send/Recv passes back to back with no
// delay, for draining already-available bytes without risking a spurious
// timeout (mirrors pkg/wou/board_test.go's driveUntilAcked).
func pumpPasses(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Send())
		require.NoError(t, s.Recv())
	}
}

// TestReplayRecoversFromCorruptedAck exercises the Go-Back-N replay path end
// to end: a reply with a flipped CRC byte is silently discarded by the
// parser's resync (§4.6), the host's wall-clock timeout then fires and
// retransmits the original frame (§4.7.1 step 1), and a clean copy of the
// same ack advances the window exactly as it would have the first time.
func TestReplayRecoversFromCorruptedAck(t *testing.T) {
	win := window.New(4, testMaxPsize)
	reg := shadow.New(64)
	p := parser.New(win, reg)
	ep := usbendpoint.NewMock()
	fe := transporttest.Wrap(ep)

	cfg := testConfig()
	cfg.TxTimeout = 5 * time.Millisecond
	s := New(fe, win, p, cfg)

	require.NoError(t, win.Append(frame.WR, 0x0010, []byte{0xAA}))
	win.Eof()
	win.PrepareClock()

	ack := frame.New(testMaxPsize)
	ack.Seal(1) // acks tidSb=0

	fe.CorruptNextReads(1)
	ep.Inject(ack.Bytes())

	pumpUntilTimeout(t, s, time.Millisecond, 20)

	require.Equal(t, uint64(1), p.CRCErrors)
	require.Equal(t, uint64(1), s.TxTimeouts)
	sb, _, _, tidSb, _, _ := win.Cursors()
	require.Equal(t, byte(0), sb, "the corrupted ack must never have advanced the window")
	require.Equal(t, byte(0), tidSb)

	ep.Inject(ack.Bytes())
	pumpPasses(t, s, 10)

	sb, sn, _, tidSb, _, _ := win.Cursors()
	require.Equal(t, byte(1), sb)
	require.Equal(t, byte(1), sn)
	require.Equal(t, byte(1), tidSb)
}

// TestReplayRecoversFromDroppedAck is the same property with the ack's
// bytes vanishing entirely (a zero-length completion, as if the USB
// transfer silently lost the data) instead of failing CRC.
func TestReplayRecoversFromDroppedAck(t *testing.T) {
	win := window.New(4, testMaxPsize)
	reg := shadow.New(64)
	p := parser.New(win, reg)
	ep := usbendpoint.NewMock()
	fe := transporttest.Wrap(ep)

	cfg := testConfig()
	cfg.TxTimeout = 5 * time.Millisecond
	s := New(fe, win, p, cfg)

	require.NoError(t, win.Append(frame.WR, 0x0020, []byte{0x01}))
	win.Eof()
	win.PrepareClock()

	ack := frame.New(testMaxPsize)
	ack.Seal(1)

	fe.DropNextReads(1)
	ep.Inject(ack.Bytes())

	pumpUntilTimeout(t, s, time.Millisecond, 20)

	require.Equal(t, uint64(0), p.CRCErrors, "a dropped completion never reaches the parser at all")
	require.Equal(t, uint64(1), s.TxTimeouts)
	sb, _, _, tidSb, _, _ := win.Cursors()
	require.Equal(t, byte(0), sb)
	require.Equal(t, byte(0), tidSb)

	ep.Inject(ack.Bytes())
	pumpPasses(t, s, 10)

	sb, sn, _, tidSb, _, _ := win.Cursors()
	require.Equal(t, byte(1), sb)
	require.Equal(t, byte(1), sn)
	require.Equal(t, byte(1), tidSb)
}
