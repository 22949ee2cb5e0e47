// Package wou implements the public WOU transport-core API (C7): Init,
// Connect, Append, Eof, Status, ReadShadow and Close, wiring together the
// CRC/frame/window/parser/transport layers into one cooperatively
// scheduled engine.
//
// Grounded on cmd/bluetooth-service/main.go + pkg/service/service.go for
// the overall shape of a small stateful handle type with sentinel errors
// surfaced via fmt.Errorf/errors.Is, adapted from the teacher's
// BLE-service lifecycle (New/Start/Stop) to the engine's
// init/connect/append/eof/status/close lifecycle.
package wou

import (
	"errors"
	"fmt"
	"time"

	"github.com/araisrobo/wou/pkg/bootstrap"
	"github.com/araisrobo/wou/pkg/frame"
	"github.com/araisrobo/wou/pkg/parser"
	"github.com/araisrobo/wou/pkg/shadow"
	"github.com/araisrobo/wou/pkg/telemetry"
	"github.com/araisrobo/wou/pkg/transport"
	"github.com/araisrobo/wou/pkg/usbendpoint"
	"github.com/araisrobo/wou/pkg/window"
)

var (
	// ErrUnknownBoardType is returned by Init for a board_type absent
	// from the board table.
	ErrUnknownBoardType = errors.New("wou: unknown board type")
	// ErrInvalidAppendParams is returned by Append for a data slice longer
	// than frame.MaxDsize or a func that is neither RD nor WR.
	ErrInvalidAppendParams = errors.New("wou: invalid append parameters")
	// ErrNotConnected is returned by Append/Eof/Status/ReadShadow before
	// Connect has succeeded, and again after Close.
	ErrNotConnected = errors.New("wou: board not connected")
	// ErrClosed is not returned by any Board method: operations after
	// Close report ErrNotConnected.
	ErrClosed = errors.New("wou: board closed")
)

// TransportError wraps a fatal transport failure (USB submit/poll error,
// device disconnect). Once returned, the Board is unusable (spec §7).
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return fmt.Sprintf("wou: transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Status is the non-blocking snapshot returned by Board.Status (spec §6).
type Status struct {
	TxBytes        uint64
	RxBytes        uint64
	Uptime         time.Duration
	CRCErrors      uint64
	UnexpectedTIDs uint64
	TxTimeouts     uint64
}

// Board is a WOU transport-core handle. Not safe for concurrent use:
// append/eof/status/read_shadow/close must all be called from the same
// execution context (spec §5).
type Board struct {
	cfg       Config
	boardType string
	chipType  string
	bitfile   string
	deviceID  int
	loader    bootstrap.Loader

	win   *window.Window
	reg   *shadow.Map
	p     *parser.Parser
	sched *transport.Scheduler
	ep    usbendpoint.Endpoint

	observer  telemetry.Observer
	timeBegin time.Time

	connected bool
	fatal     error
}

// Init validates boardType against the board table and allocates the
// engine's state (window, shadow map, parser) without opening any I/O.
// Connect performs the actual device open.
func Init(boardType string, deviceID int, bitfile string, cfg Config) (*Board, error) {
	entry, ok := lookupBoard(boardType)
	if !ok {
		return nil, ErrUnknownBoardType
	}

	win := window.New(cfg.NrOfWin, cfg.MaxPsize)
	reg := shadow.New(ShadowSize)
	p := parser.New(win, reg)

	b := &Board{
		cfg:       cfg,
		boardType: boardType,
		chipType:  entry.chipType,
		bitfile:   bitfile,
		deviceID:  deviceID,
		loader:    entry.loader,
		win:       win,
		reg:       reg,
		p:         p,
	}
	return b, nil
}

// SetObserver attaches an optional telemetry observer. Must be called
// before Connect to see shadow-write callbacks from the first frame.
func (b *Board) SetObserver(o telemetry.Observer) {
	b.observer = o
	b.p.OnCommit = func(addr uint16, data []byte) {
		if b.observer != nil {
			b.observer.ShadowWrite(addr, data)
		}
	}
}

// Connect resets the target, optionally loads a bitstream, opens the
// serial/FTDI endpoint at devicePath, and initialises the scheduler.
func (b *Board) Connect(devicePath string) error {
	ep, err := usbendpoint.OpenSerial(devicePath, b.cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("wou: connect: %w", err)
	}
	return b.connectEndpoint(ep)
}

// ConnectEndpoint wires the board to an already-open Endpoint, bypassing
// device enumeration. Used by tests with usbendpoint.MockEndpoint, and by
// callers that manage endpoint lifetime themselves.
func (b *Board) ConnectEndpoint(ep usbendpoint.Endpoint) error {
	return b.connectEndpoint(ep)
}

func (b *Board) connectEndpoint(ep usbendpoint.Endpoint) error {
	if b.loader != nil {
		if err := b.loader.Reset(); err != nil {
			return fmt.Errorf("wou: bootstrap reset: %w", err)
		}
		if b.bitfile != "" {
			if err := b.loader.LoadBitstream(b.chipType, b.bitfile); err != nil {
				return fmt.Errorf("wou: bootstrap load: %w", err)
			}
		}
		if err := b.loader.HandOff(); err != nil {
			return fmt.Errorf("wou: bootstrap handoff: %w", err)
		}
	}

	b.ep = ep
	b.sched = transport.New(ep, b.win, b.p, transport.Config{
		TxTimeout:  b.cfg.TxTimeout,
		TxBurstMin: b.cfg.TxBurstMin,
		TxBurstMax: b.cfg.TxBurstMax,
		RxBurstMin: b.cfg.RxBurstMin,
	})
	b.timeBegin = time.Now()
	b.connected = true
	return nil
}

// Append queues one Wishbone command into the frame currently being
// built, transparently sealing and waiting for a free clock slot as many
// times as needed (spec §4.3/§4.4).
func (b *Board) Append(fn frame.Func, addr uint16, data []byte) error {
	if err := b.precondition(); err != nil {
		return err
	}
	if len(data) > frame.MaxDsize {
		return ErrInvalidAppendParams
	}

	for {
		err := b.win.Append(fn, addr, data)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, frame.ErrFrameFull):
			b.win.Eof()
			if err := b.waitForClock(); err != nil {
				return err
			}
		case errors.Is(err, window.ErrWindowFull):
			if err := b.waitForClock(); err != nil {
				return err
			}
		case errors.Is(err, frame.ErrInvalidFunc), errors.Is(err, frame.ErrDsizeTooLarge):
			return ErrInvalidAppendParams
		default:
			return err
		}
	}
}

// Eof seals the frame currently being built and schedules it, blocking
// cooperatively until the next clock slot is free (spec §4.4).
func (b *Board) Eof() error {
	if err := b.precondition(); err != nil {
		return err
	}
	b.win.Eof()
	return b.waitForClock()
}

// waitForClock drives the transport scheduler until the current clock
// slot is free, napping ClockPoll between iterations (spec §4.4 step 5,
// §5 "bounded spin-sleep"). It also resets the now-free slot to an empty
// header once ready.
//
// This is a do-while, not a pre-checked for loop: Eof() has just advanced
// clk onto a brand-new, never-used slot, so ClockReady() is almost always
// already true on entry (the window isn't full). The drive loop must still
// pump Send/Recv at least once per call so the just-sealed frame actually
// gets staged and written to the endpoint — mirroring
// original_source/src/wou/board.c's wou_eof(), whose drive loop is
// `do { wou_send(b); wou_recv(b); ... } while (wou_frame_->use);`.
func (b *Board) waitForClock() error {
	for {
		if err := b.sched.Step(); err != nil {
			b.fatal = err
			return &TransportError{Err: err}
		}
		if b.win.ClockReady() {
			break
		}
		time.Sleep(ClockPoll)
	}
	b.win.PrepareClock()
	return nil
}

// Status returns non-blocking transport counters.
func (b *Board) Status() (Status, error) {
	if err := b.precondition(); err != nil {
		return Status{}, err
	}
	return Status{
		TxBytes:        b.sched.TxBytesTotal,
		RxBytes:        b.sched.RxBytesTotal,
		Uptime:         time.Since(b.timeBegin),
		CRCErrors:      b.p.CRCErrors,
		UnexpectedTIDs: b.p.UnexpectedTIDs,
		TxTimeouts:     b.sched.TxTimeouts,
	}, nil
}

// PublishStatus pushes the current Status to the attached observer, if
// any. Unlike Status, this may block briefly on network I/O and so is
// never called implicitly from the hot path.
func (b *Board) PublishStatus() error {
	st, err := b.Status()
	if err != nil {
		return err
	}
	if b.observer != nil {
		b.observer.Status(st.TxBytes, st.RxBytes, st.Uptime, st.CRCErrors, st.UnexpectedTIDs, st.TxTimeouts)
	}
	return nil
}

// ReadShadow returns a copy of n bytes of the shadow register map
// starting at addr.
func (b *Board) ReadShadow(addr uint16, n uint16) ([]byte, error) {
	if err := b.precondition(); err != nil {
		return nil, err
	}
	return b.reg.Read(addr, n)
}

// Close tears down the endpoint and marks the handle unusable.
func (b *Board) Close() error {
	if !b.connected {
		return nil
	}
	b.connected = false
	return b.ep.Close()
}

func (b *Board) precondition() error {
	if b.fatal != nil {
		return &TransportError{Err: b.fatal}
	}
	if !b.connected {
		return ErrNotConnected
	}
	return nil
}
