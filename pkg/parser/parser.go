// Package parser implements the streaming receive parser (C5): a
// byte-oriented state machine that resynchronises on preambles, validates
// the trailing CRC-16, drives the Go-Back-N window advance, and commits
// payload data into the shadow register map.
//
// Grounded on pkg/usock/usock.go's byte-at-a-time processByte state
// machine (the teacher's own SYNC/accumulate/validate shape for a framed
// serial protocol), generalised from the teacher's single-state CRC-check
// to WOU's two states (SYNC, PLOAD_CRC) per spec §4.6.
package parser

import (
	"encoding/binary"

	"github.com/araisrobo/wou/pkg/crc16"
	"github.com/araisrobo/wou/pkg/frame"
	"github.com/araisrobo/wou/pkg/shadow"
	"github.com/araisrobo/wou/pkg/window"
)

type state int

const (
	stateSync state = iota
	statePloadCRC
)

// Parser owns the RX byte buffer and the SYNC/PLOAD_CRC state machine. It
// is not safe for concurrent use: the scheduler (C6) is the only caller,
// per the single-threaded cooperative model of spec §5.
type Parser struct {
	buf   []byte
	state state

	win *window.Window
	reg *shadow.Map

	// OnFlush is invoked whenever the window algorithm signals an
	// unexpected tidR (§4.5), after the RX buffer has already been
	// discarded. The transport scheduler (C6) wires this to abort its
	// in-flight TX transfer and zero its TX staging / rx_req bookkeeping
	// (§4.5, §4.8) — state the parser itself has no access to.
	OnFlush func()

	// OnCommit is invoked after each packet's data is applied to the
	// shadow map, for optional telemetry observers (pkg/telemetry). Must
	// not block meaningfully: it runs inline on the single-threaded
	// engine's hot path (spec §5).
	OnCommit func(addr uint16, data []byte)

	// Counters surfaced via Status (spec §7); recoverable-event
	// observability, not behaviour.
	CRCErrors      uint64
	UnexpectedTIDs uint64
}

// New returns a Parser that advances win and commits payload bytes into
// reg as frames are recognised.
func New(win *window.Window, reg *shadow.Map) *Parser {
	return &Parser{win: win, reg: reg}
}

// Feed appends newly received bytes to the RX buffer and runs the state
// machine to exhaustion (until it needs more bytes than are available).
// Feeding the same byte stream in arbitrarily-sized chunks yields the same
// sequence of shadow-map commits as feeding it in one call (spec §8,
// "parser restartability").
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
	for p.step() {
	}
}

// drop discards the first n bytes of the buffer, compacting into a fresh
// slice rather than reslicing forward — a long-running stream would
// otherwise retain every consumed byte's backing array indefinitely.
func (p *Parser) drop(n int) {
	rest := len(p.buf) - n
	if rest <= 0 {
		p.buf = p.buf[:0]
		return
	}
	compacted := make([]byte, rest)
	copy(compacted, p.buf[n:])
	p.buf = compacted
}

// step runs one state transition. It returns true if it made progress and
// should be called again, false if it is blocked waiting for more bytes.
func (p *Parser) step() bool {
	switch p.state {
	case stateSync:
		return p.stepSync()
	default:
		return p.stepPloadCRC()
	}
}

// stepSync implements §4.6 SYNC: scan for {PREAMBLE, PREAMBLE, SOFD}. The
// "found" flag is explicit (REDESIGN FLAGS: the original's cmp==0 reuse of
// the scan loop's exit value is a latent bug when the loop runs to
// completion without a match). Scanning starts once the buffer holds at
// least a header-only frame (HdrSize+CRCSize bytes).
func (p *Parser) stepSync() bool {
	minLen := frame.HdrSize + frame.CRCSize
	if len(p.buf) < minLen {
		return false
	}

	found := false
	idx := 0
	for i := 0; i+2 < len(p.buf); i++ {
		if p.buf[i] == frame.Preamble && p.buf[i+1] == frame.Preamble && p.buf[i+2] == frame.SOFD {
			found = true
			idx = i
			break
		}
	}

	if !found {
		keep := frame.HdrSize - 1
		if len(p.buf) > keep {
			p.drop(len(p.buf) - keep)
		}
		return false
	}

	p.drop(idx + 3)
	p.state = statePloadCRC
	return true
}

// stepPloadCRC implements §4.6 PLOAD_CRC.
//
// head[0] = PLOAD_SIZE_TX, head[1] = TID (the inbound request-number
// tidR), head[2] = PLOAD_SIZE_RX, head[3:3+PLOAD_SIZE_TX] = the packet
// stream. The frame needs 3+PLOAD_SIZE_TX+CRC_SIZE bytes total before it
// can be validated; the CRC covers head[0:3+PLOAD_SIZE_TX), mirroring
// exactly what pkg/frame.Seal computed it over on the sending side
// (buf[3:fsize) before the CRC bytes were appended).
func (p *Parser) stepPloadCRC() bool {
	if len(p.buf) < 1 {
		return false
	}
	ploadSizeTX := int(p.buf[0])
	need := 3 + ploadSizeTX + frame.CRCSize
	if len(p.buf) < need {
		return false
	}

	crcRange := p.buf[0 : 3+ploadSizeTX]
	gotCRC := binary.LittleEndian.Uint16(p.buf[3+ploadSizeTX:])
	wantCRC := crc16.Compute(crcRange)

	if gotCRC != wantCRC {
		p.CRCErrors++
		p.drop(1)
		p.state = stateSync
		return true
	}

	tidR := p.buf[1]
	payload := p.buf[3 : 3+ploadSizeTX]

	flush := p.win.Advance(tidR)
	if flush {
		p.UnexpectedTIDs++
		p.buf = nil
		p.state = stateSync
		if p.OnFlush != nil {
			p.OnFlush()
		}
		return false
	}

	p.applyPayload(payload)
	p.drop(need)
	p.state = stateSync
	return true
}

// applyPayload commits a validated frame's packet stream into the shadow
// map (§4.6 "Payload parse"): each packet is dsize|addr|data, dsize
// masking off the reserved RD/WR bit since inbound frames always carry
// resolved data for the host to absorb.
func (p *Parser) applyPayload(payload []byte) {
	i := 0
	for i < len(payload) {
		if i+frame.PacketHdrSize > len(payload) {
			return
		}
		dsize := int(payload[i] & 0x7F)
		addr := binary.LittleEndian.Uint16(payload[i+1 : i+3])
		i += frame.PacketHdrSize
		if i+dsize > len(payload) {
			return
		}
		data := payload[i : i+dsize]
		if err := p.reg.Apply(addr, data); err == nil && p.OnCommit != nil {
			p.OnCommit(addr, data)
		}
		i += dsize
	}
}

// Pending returns the number of RX bytes buffered but not yet consumed
// into a recognised frame, for diagnostics.
func (p *Parser) Pending() int {
	return len(p.buf)
}
