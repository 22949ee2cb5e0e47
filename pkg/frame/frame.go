// Package frame implements the WOU-frame data model (§3) and the frame
// builder/sealer (C3, §4.3–§4.4): constructing outbound WOU-frames by
// appending Wishbone read/write commands and sealing them with a CRC.
//
// Grounded on pkg/usock/usock.go's Frame/WriteWithFrameID (header then
// payload then trailing CRC, assembled into one contiguous buffer) and on
// original_source/src/wou/board.c's wou_append/wou_eof for the exact byte
// offsets.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/araisrobo/wou/pkg/crc16"
)

// Wire constants (spec §3, §6).
const (
	Preamble = 0xA5 // placeholder value; fixed at build to match the FPGA peer
	SOFD     = 0x5A // start-of-frame delimiter

	HdrSize       = 6 // WOUF_HDR_SIZE: preamble*2 + SOFD + PLOAD_SIZE_TX + TID + PLOAD_SIZE_RX
	CRCSize       = 2
	PacketHdrSize = 3 // WOU_HDR_SIZE: FUNC_DSIZE + WB_ADDR
	AddrSize      = 2
	MaxDsize      = 127 // top bit of FUNC_DSIZE is reserved for the RD/WR flag
)

// Func is the WOU packet function: read or write.
type Func uint8

const (
	RD Func = 0x00 // top bit clear
	WR Func = 0x80 // top bit set
)

func (f Func) String() string {
	switch f {
	case RD:
		return "RD"
	case WR:
		return "WR"
	default:
		return fmt.Sprintf("Func(0x%02x)", uint8(f))
	}
}

var (
	// ErrInvalidFunc is returned by Append when func is neither RD nor WR.
	ErrInvalidFunc = errors.New("frame: func must be RD or WR")
	// ErrDsizeTooLarge is returned when dsize exceeds MaxDsize.
	ErrDsizeTooLarge = errors.New("frame: dsize exceeds MAX_DSIZE")
	// ErrFrameFull is returned by Append when the packet would not fit
	// within maxPsize; the caller (the window, which owns the CLOCK slots)
	// must seal the current frame and retry against a fresh one.
	ErrFrameFull = errors.New("frame: packet does not fit, seal required")
)

// Frame is one WOU-frame: a CLOCK slot (§3 "Window state"). Buf holds the
// contiguous wire bytes being accumulated; FSize is the number of bytes
// written so far (header included); PloadSizeRx accumulates the reply size
// expected for RD commands queued in this frame; Use marks the slot as
// holding a sealed, not-yet-acknowledged frame.
type Frame struct {
	Buf         []byte
	FSize       int
	PloadSizeRx int
	Use         bool
}

// MaxFrameSize returns the largest a sealed frame can be for a given
// MAX_PSIZE, per the original's wou_eof/wou_send sizing assertion:
// WOUF_HDR_SIZE + MAX_PSIZE + CRC_SIZE.
func MaxFrameSize(maxPsize int) int {
	return HdrSize + maxPsize + CRCSize
}

// New allocates a Frame with enough capacity for maxPsize and resets it to
// an empty header.
func New(maxPsize int) *Frame {
	f := &Frame{Buf: make([]byte, MaxFrameSize(maxPsize))}
	f.Reset()
	return f
}

// Reset re-initialises the frame to an empty header (wouf_init in the
// original): preamble/SOFD written, size/TID/PLOAD_SIZE_RX fields left for
// Seal to fill in, FSize rewound to HdrSize, PloadSizeRx rewound to zero.
func (f *Frame) Reset() {
	f.Buf[0] = Preamble
	f.Buf[1] = Preamble
	f.Buf[2] = SOFD
	f.FSize = HdrSize
	f.PloadSizeRx = 0
	f.Use = false
}

// Append writes one WOU packet (FUNC_DSIZE, WB_ADDR, [data]) into the
// frame currently being built. For WR, dsize data bytes follow the header
// and FSize grows by PacketHdrSize+dsize. For RD, no data bytes are
// written and PloadSizeRx grows by PacketHdrSize+dsize (the reply size the
// remote end is expected to send back).
//
// maxPsize bounds how large the TX payload (and, for RD, the expected RX
// payload) may grow; Append returns ErrFrameFull without mutating the
// frame when the packet would not fit, so the caller can Seal and retry
// against a fresh slot (spec §4.3).
func (f *Frame) Append(maxPsize int, fn Func, addr uint16, data []byte) error {
	dsize := len(data)
	if dsize > MaxDsize {
		return ErrDsizeTooLarge
	}

	switch fn {
	case WR:
		if (f.FSize - HdrSize + PacketHdrSize + dsize) > maxPsize {
			return ErrFrameFull
		}
		i := f.FSize
		f.Buf[i] = byte(fn) | byte(dsize&0x7F)
		i++
		binary.LittleEndian.PutUint16(f.Buf[i:], addr)
		i += AddrSize
		copy(f.Buf[i:], data)
		f.FSize = i + dsize
	case RD:
		if (f.FSize-HdrSize+PacketHdrSize) > maxPsize || (f.PloadSizeRx+PacketHdrSize+dsize) > maxPsize {
			return ErrFrameFull
		}
		i := f.FSize
		f.Buf[i] = byte(fn) | byte(dsize&0x7F)
		i++
		binary.LittleEndian.PutUint16(f.Buf[i:], addr)
		i += AddrSize
		f.FSize = i
		f.PloadSizeRx += PacketHdrSize + dsize
	default:
		return ErrInvalidFunc
	}
	return nil
}

// Seal writes the header's size fields, seals the frame with a CRC-16, and
// marks it Use=true (spec §4.4 steps 1–3). The caller is responsible for
// advancing the CLOCK cursor and the TID counter afterward.
//
// PLOAD_SIZE_TX is the packet-stream byte count only (fsize-HdrSize, per
// the original's wou_eof); the CRC then covers PLOAD_SIZE_TX, TID,
// PLOAD_SIZE_RX and the packet stream together (buf[3:fsize)), matching
// the spec's invariant "CRC over F[3..fsize-2]" exactly.
func (f *Frame) Seal(tid byte) {
	ploadSizeTX := f.FSize - HdrSize
	f.Buf[3] = byte(ploadSizeTX & 0xFF)
	f.Buf[4] = tid
	f.Buf[5] = byte(f.PloadSizeRx & 0xFF)

	crc := crc16.Compute(f.Buf[3:f.FSize])
	binary.LittleEndian.PutUint16(f.Buf[f.FSize:], crc)
	f.FSize += CRCSize
	f.Use = true
}

// Bytes returns the sealed wire bytes (Buf[:FSize]).
func (f *Frame) Bytes() []byte {
	return f.Buf[:f.FSize]
}

// TID returns the TID field of a sealed frame.
func (f *Frame) TID() byte {
	return f.Buf[4]
}
