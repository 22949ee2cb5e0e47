// Package usbendpoint provides the narrow USB/serial endpoint contract the
// transport scheduler (C6) drives: async submit/poll transfers over a
// bulk-style endpoint, plus a real implementation (backed by a FTDI bridge
// exposed as a virtual COM port) and a mock for deterministic tests.
//
// Grounded on pkg/usock/usock.go's readLoop/port usage: the teacher blocks
// on port.Read in a dedicated goroutine and feeds bytes to its parser one
// at a time. Here the blocking I/O is pushed into a per-transfer goroutine
// so the scheduler (single-threaded, per spec §5) can poll completion
// without ever blocking itself. A Transfer offers Poll, Bytes and Cancel
// only; it has no blocking wait-for-completion operation.
package usbendpoint

import (
	"errors"

	"go.bug.st/serial"
)

// ErrClosed is returned by Submit* after Close.
var ErrClosed = errors.New("usbendpoint: endpoint closed")

// Transfer is an opaque handle to one in-flight async transfer. It is
// owned exclusively by the scheduler that submitted it; never share a
// Transfer between execution contexts.
type Transfer interface {
	// Poll reports whether the transfer has completed. done=false means
	// "not yet" and must never block. Once done, n and err carry the
	// final result (n bytes written, or n bytes read into the slice
	// returned by Bytes) and the Transfer is retired.
	Poll() (done bool, n int, err error)
	// Bytes returns the read buffer backing a SubmitRead transfer (nil
	// for a write transfer). Only meaningful once Poll reports done.
	Bytes() []byte
	// Cancel aborts the transfer deterministically; safe to call after
	// completion (a no-op in that case).
	Cancel()
}

// Endpoint is the bulk USB/serial transport the scheduler drives.
type Endpoint interface {
	SubmitWrite(data []byte) (Transfer, error)
	SubmitRead(max int) (Transfer, error)
	Close() error
}

type transfer struct {
	done chan struct{}
	n    int
	err  error
	buf  []byte
}

func newTransfer(buf []byte) *transfer {
	return &transfer{done: make(chan struct{}), buf: buf}
}

func (t *transfer) finish(n int, err error) {
	t.n, t.err = n, err
	close(t.done)
}

func (t *transfer) Poll() (bool, int, error) {
	select {
	case <-t.done:
		return true, t.n, t.err
	default:
		return false, 0, nil
	}
}

func (t *transfer) Bytes() []byte {
	if t.buf == nil {
		return nil
	}
	return t.buf[:t.n]
}

// Cancel on a plain transfer is a no-op past submission: the real
// endpoint's goroutine is already blocked in the underlying port call and
// SerialEndpoint.Close is the only deterministic way to unblock it (spec
// §5, "closing the board tears down both transfers and the endpoint").
func (t *transfer) Cancel() {}

// SerialEndpoint backs Endpoint with go.bug.st/serial, the teacher's
// declared (but, until now, unused) serial dependency, opened on a
// virtual-COM-port FTDI bridge. Its Read/Write calls block, so each
// transfer runs them in its own goroutine.
type SerialEndpoint struct {
	port   serial.Port
	closed chan struct{}

	ReadChunkSize  int
	WriteChunkSize int
}

const (
	defaultReadChunkSize  = 64
	defaultWriteChunkSize = 64
)

// OpenSerial opens devicePath at baud and returns a ready SerialEndpoint.
func OpenSerial(devicePath string, baud int) (*SerialEndpoint, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, err
	}
	return &SerialEndpoint{
		port:           port,
		closed:         make(chan struct{}),
		ReadChunkSize:  defaultReadChunkSize,
		WriteChunkSize: defaultWriteChunkSize,
	}, nil
}

// SubmitWrite hands data off to a background goroutine that performs the
// blocking port.Write and reports completion via the returned Transfer.
func (e *SerialEndpoint) SubmitWrite(data []byte) (Transfer, error) {
	select {
	case <-e.closed:
		return nil, ErrClosed
	default:
	}

	t := newTransfer(nil)
	go func() {
		n, err := e.port.Write(data)
		t.finish(n, err)
	}()
	return t, nil
}

// SubmitRead submits an async read of up to max bytes.
func (e *SerialEndpoint) SubmitRead(max int) (Transfer, error) {
	select {
	case <-e.closed:
		return nil, ErrClosed
	default:
	}

	buf := make([]byte, max)
	t := newTransfer(buf)
	go func() {
		n, err := e.port.Read(buf)
		t.finish(n, err)
	}()
	return t, nil
}

// Close tears down the serial port. In-flight transfers' goroutines will
// observe the resulting I/O error and report it via Poll.
func (e *SerialEndpoint) Close() error {
	select {
	case <-e.closed:
		return nil
	default:
		close(e.closed)
	}
	return e.port.Close()
}
