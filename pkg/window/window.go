// Package window implements the Go-Back-N sliding window (C4): the
// circular frame buffer ("CLOCK"), the Sm/Sn/Sb/tidSb/tid/clock cursors,
// and the window-advance algorithm run against inbound acknowledgements.
//
// Grounded directly on original_source/src/wou/board.c's window
// bookkeeping (wou_send's Sm/Sn/Sb walk, wouf_parse's advance branch) for
// the algorithm; expressed as a struct with mod-256 byte cursors instead
// of raw pointer arithmetic, in the teacher's idiom of small structs with
// explicit methods (pkg/usock/usock.go's USOCK/Frame shape).
package window

import (
	"errors"

	"github.com/araisrobo/wou/pkg/frame"
)

// NrOfClk is the fixed CLOCK size (spec §3): 256 slots, addressed by a
// single byte so every cursor wraps modulo 256 for free.
const NrOfClk = 256

// ErrWindowFull is returned by Append when the clock has advanced NR_OF_WIN
// slots past Sb (see ClockReady) — the caller must wait for an
// acknowledgement (drive the transport scheduler) rather than seal again.
var ErrWindowFull = errors.New("window: clock slot still in flight")

// Window owns the CLOCK and the Go-Back-N cursors.
type Window struct {
	slots    [NrOfClk]*frame.Frame
	maxPsize int
	winSize  int

	sm, sn, sb byte
	tidSb      byte
	tid        byte
	clk        byte
}

// New allocates a Window. winSize must be <= NrOfClk-1 (spec §3).
func New(winSize, maxPsize int) *Window {
	w := &Window{maxPsize: maxPsize, winSize: winSize}
	for i := range w.slots {
		w.slots[i] = frame.New(maxPsize)
	}
	w.sm = byte(winSize - 1)
	return w
}

// Append writes one WOU packet into the frame slot currently being built.
// It returns frame.ErrFrameFull when the packet doesn't fit (the caller
// must seal via Eof and retry), or ErrWindowFull when the clock has already
// advanced NR_OF_WIN slots past Sb with none of them acknowledged yet (the
// caller must wait).
func (w *Window) Append(fn frame.Func, addr uint16, data []byte) error {
	if !w.ClockReady() {
		return ErrWindowFull
	}
	cur := w.slots[w.clk]
	return cur.Append(w.maxPsize, fn, addr, data)
}

// Eof seals the frame currently being built (§4.4 steps 1–3) and advances
// the clock/TID counters (step 3). It does not reset the new current slot
// — callers must poll ClockReady and call PrepareClock once the slot frees,
// which is where the blocking drive-loop semantics of the public eof()
// operation belong (pkg/wou, which alone has access to the transport
// scheduler needed to make progress while waiting).
func (w *Window) Eof() {
	w.slots[w.clk].Seal(w.tid)
	w.clk++
	w.tid++
}

// ClockReady reports whether the slot the builder would write into next is
// free. This is an Sm/Sb-relative invariant ((clk-Sb) mod 256 < NR_OF_WIN),
// not a raw use=1 check of slots[clk]: the 256-slot CLOCK array is far
// larger than any realistic NR_OF_WIN, so clk only physically collides with
// a stale in-flight slot after a full 256-slot wraparound. The window is
// actually full as soon as the builder has advanced NR_OF_WIN slots past Sb
// with none of them acknowledged, well before clk ever revisits slot 0.
func (w *Window) ClockReady() bool {
	dist := int(w.clk - w.sb)
	return dist < w.winSize
}

// PrepareClock resets the current clock slot to an empty header, once it
// is known to be free. Safe to call repeatedly.
func (w *Window) PrepareClock() {
	if !w.slots[w.clk].Use {
		w.slots[w.clk].Reset()
	}
}

// StageForSend copies every in-flight (use=1), not-yet-transmitted frame
// starting at Sn into dst, advancing Sn past each one copied, and returns
// the total bytes written plus the summed RX reply size the peer is now
// expected to send back (§4.7.1 step 2). It stops at the first empty slot
// or once dst's capacity is exhausted.
func (w *Window) StageForSend(dst []byte) (n int, rxReqSize int) {
	steps := int(w.sm-w.sn) + 1
	for k := 0; k < steps; k++ {
		idx := w.sn + byte(k)
		slot := w.slots[idx]
		if !slot.Use {
			break
		}
		b := slot.Bytes()
		if n+len(b) > len(dst) {
			break
		}
		copy(dst[n:], b)
		n += len(b)
		rxReqSize += slot.PloadSizeRx + frame.HdrSize + 1 + frame.CRCSize
		w.sn = idx + 1
	}
	return n, rxReqSize
}

// Advance applies the Go-Back-N window algorithm (§4.5) for an inbound
// frame whose header carries request-number tidR. It returns flush=true
// when tidR was unexpected (including a NAK, i.e. advance==0): the caller
// must discard the current RX buffer contents, abort any in-flight TX
// transfer, and retransmit from Sb.
func (w *Window) Advance(tidR byte) (flush bool) {
	advance := tidR - w.tidSb
	if advance > 0 && advance < byte(w.winSize) {
		for i := byte(0); i < advance; i++ {
			w.slots[w.sb].Use = false
			w.sb++
		}
		w.sm += advance
		w.tidSb = tidR
		return false
	}

	w.sn = w.sb
	w.tidSb = tidR
	return true
}

// ResetForRetransmit rewinds Sn to Sb without touching the acknowledgement
// cursor, for the TX wall-clock timeout case (§4.7.1 step 1), which is
// identical to the unexpected-tidR branch of Advance except that tidSb is
// left untouched and RX bookkeeping is preserved (§4.8).
func (w *Window) ResetForRetransmit() {
	w.sn = w.sb
}

// Cursors returns the current Sb/Sn/Sm/tidSb/tid/clock values, for status
// reporting and invariant checks.
func (w *Window) Cursors() (sb, sn, sm, tidSb, tid, clk byte) {
	return w.sb, w.sn, w.sm, w.tidSb, w.tid, w.clk
}

// WinSize returns NR_OF_WIN.
func (w *Window) WinSize() int {
	return w.winSize
}
