// Package transport implements the transport scheduler (C6): it drives
// async submit/complete of USB write and read transfers against the
// window's staged frames and the receive parser, enforcing pacing and
// retransmission timeouts.
//
// Grounded on original_source/src/wou/board.c's wou_send/wou_recv for the
// algorithm, and on pkg/usock/usock.go's readLoop for the Go idiom of
// owning the endpoint exclusively from one goroutine/execution context.
package transport

import (
	"time"

	"github.com/araisrobo/wou/pkg/parser"
	"github.com/araisrobo/wou/pkg/usbendpoint"
	"github.com/araisrobo/wou/pkg/window"
)

// Config holds the tuning constants spec §3/§4.7 leave to the build
// (they live in the FPGA peer's register header in the original system).
type Config struct {
	TxTimeout  time.Duration
	TxBurstMin int
	TxBurstMax int
	RxBurstMin int
}

// Scheduler owns the USB endpoint exclusively (spec §5): no other
// execution context may call Send/Recv concurrently with itself or with
// the window/parser it drives.
type Scheduler struct {
	ep  usbendpoint.Endpoint
	win *window.Window
	p   *parser.Parser
	cfg Config

	txStaging []byte
	rxReqSize int
	rxReq     int

	pendingTX     usbendpoint.Transfer
	pendingRX     usbendpoint.Transfer
	timeSendBegin time.Time

	// TxTimeouts counts retransmit-on-timeout events (spec §7 status).
	TxTimeouts uint64

	// TxBytesTotal/RxBytesTotal accumulate bytes actually handed to and
	// drained from the endpoint, for status() (spec §6).
	TxBytesTotal uint64
	RxBytesTotal uint64
}

// New wires up a Scheduler. p.OnFlush is overwritten to point back at the
// scheduler's own flush handler — the parser has no other way to reach
// the TX staging/rx_req state the window-advance flush signal must reset.
func New(ep usbendpoint.Endpoint, win *window.Window, p *parser.Parser, cfg Config) *Scheduler {
	s := &Scheduler{ep: ep, win: win, p: p, cfg: cfg, txStaging: make([]byte, 0, 4096)}
	p.OnFlush = s.handleFlush
	return s
}

// handleFlush implements the scheduler-side half of §4.5's unexpected-tidR
// recovery: abort the in-flight TX transfer, discard staged TX bytes, and
// reset receive bookkeeping. The RX buffer itself was already discarded by
// the parser before calling this hook.
func (s *Scheduler) handleFlush() {
	if s.pendingTX != nil {
		s.pendingTX.Cancel()
		s.pendingTX = nil
	}
	s.txStaging = s.txStaging[:0]
	s.rxReqSize = 0
	s.rxReq = 0
	if s.pendingRX != nil {
		s.pendingRX.Cancel()
		s.pendingRX = nil
	}
}

// Send implements wou_send (§4.7.1). It never blocks: it polls any
// in-flight transfer with a zero-timeout step and returns immediately.
func (s *Scheduler) Send() error {
	if !s.timeSendBegin.IsZero() && time.Since(s.timeSendBegin) > s.cfg.TxTimeout {
		s.TxTimeouts++
		if s.pendingTX != nil {
			s.pendingTX.Cancel()
			s.pendingTX = nil
		}
		s.txStaging = s.txStaging[:0]
		s.win.ResetForRetransmit()
		s.timeSendBegin = time.Time{}
	}

	scratch := make([]byte, 4096)
	n, rxReqSize := s.win.StageForSend(scratch)
	if n > 0 {
		s.txStaging = append(s.txStaging, scratch[:n]...)
		s.rxReqSize += rxReqSize
	}

	if s.pendingTX != nil {
		done, written, err := s.pendingTX.Poll()
		if !done {
			return nil
		}
		s.pendingTX = nil
		if err != nil {
			return err
		}
		if written > len(s.txStaging) {
			written = len(s.txStaging)
		}
		s.txStaging = s.txStaging[written:]
		s.TxBytesTotal += uint64(written)
	}

	if len(s.txStaging) < s.cfg.TxBurstMin {
		return nil
	}

	burst := len(s.txStaging)
	if burst > s.cfg.TxBurstMax {
		burst = s.cfg.TxBurstMax
	}

	tr, err := s.ep.SubmitWrite(s.txStaging[:burst])
	if err != nil {
		return err
	}
	s.pendingTX = tr
	s.timeSendBegin = time.Now()
	s.rxReq += s.rxReqSize
	s.rxReqSize = 0
	return nil
}

// Recv implements wou_recv (§4.7.2). Like Send, it never blocks.
func (s *Scheduler) Recv() error {
	if s.pendingRX != nil {
		done, n, err := s.pendingRX.Poll()
		if !done {
			return nil
		}
		data := s.pendingRX.Bytes()
		s.pendingRX = nil
		if err != nil {
			return err
		}
		if n > s.rxReq {
			n = s.rxReq
		}
		s.rxReq -= n
		s.RxBytesTotal += uint64(n)
		if len(data) > 0 {
			s.p.Feed(data)
		}
	}

	if s.pendingRX == nil && s.rxReq > 0 {
		burst := s.cfg.RxBurstMin
		if burst > s.rxReq {
			burst = s.rxReq
		}
		if burst <= 0 {
			return nil
		}
		tr, err := s.ep.SubmitRead(burst)
		if err != nil {
			return err
		}
		s.pendingRX = tr
	}
	return nil
}

// Step runs one Send followed by one Recv (spec §4.7.3's ordering and
// fairness rule for each eof() drive-loop pass).
func (s *Scheduler) Step() error {
	if err := s.Send(); err != nil {
		return err
	}
	return s.Recv()
}

// PendingTXBytes reports how many TX bytes are staged but not yet
// acknowledged as written, for status/diagnostics.
func (s *Scheduler) PendingTXBytes() int {
	return len(s.txStaging)
}

// PendingRXBytes reports how many bytes the peer is still expected to
// send back before the scheduler's bookkeeping is caught up.
func (s *Scheduler) PendingRXBytes() int {
	return s.rxReq
}
