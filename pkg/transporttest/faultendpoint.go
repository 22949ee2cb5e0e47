// Package transporttest provides fault-injection helpers for exercising the
// Go-Back-N replay path (§4.5/§4.7.1) end to end through the public
// scheduler/board API, without the production endpoints ever growing
// error-injection hooks of their own (SPEC_FULL §4's "Error-injection
// counters" explicitly keeps count_tx/count_rx/TX_ERR_TEST/RX_ERR_TEST out of
// the shipped build).
//
// Grounded on pkg/usbendpoint.MockEndpoint for the synchronous completion
// model being wrapped, and on pkg/usbendpoint.Transfer/Endpoint for the
// decorator shape. Test-only: the non-test code of pkg/transport and pkg/wou
// never imports this package; pkg/transport's replay tests do.
package transporttest

import (
	"sync"

	"github.com/araisrobo/wou/pkg/usbendpoint"
)

// FaultEndpoint wraps an Endpoint and scripts faults onto upcoming read
// completions: DropNextReads discards a completion's bytes entirely (as if
// the peer's reply vanished), CorruptNextReads flips the last byte of a
// completion (as if its CRC failed in flight). Both only ever apply to a
// completion that actually carried bytes — an empty poll (no data ready
// yet) never consumes a scripted fault.
type FaultEndpoint struct {
	mu sync.Mutex

	next         usbendpoint.Endpoint
	dropReads    int
	corruptReads int
}

// Wrap returns a FaultEndpoint that proxies next until faults are scripted.
func Wrap(next usbendpoint.Endpoint) *FaultEndpoint {
	return &FaultEndpoint{next: next}
}

// DropNextReads arms the next n non-empty read completions to report as if
// the peer never replied.
func (f *FaultEndpoint) DropNextReads(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropReads += n
}

// CorruptNextReads arms the next n non-empty read completions to have their
// final byte flipped, reliably failing the frame's trailing CRC byte.
func (f *FaultEndpoint) CorruptNextReads(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corruptReads += n
}

func (f *FaultEndpoint) SubmitWrite(data []byte) (usbendpoint.Transfer, error) {
	return f.next.SubmitWrite(data)
}

func (f *FaultEndpoint) SubmitRead(max int) (usbendpoint.Transfer, error) {
	tr, err := f.next.SubmitRead(max)
	if err != nil {
		return nil, err
	}
	return &faultTransfer{inner: tr, owner: f}, nil
}

func (f *FaultEndpoint) Close() error {
	return f.next.Close()
}

// faultTransfer decides whether to apply a scripted fault exactly once, the
// first time Poll observes a completed transfer that actually read bytes,
// and caches that decision so a later Bytes() call stays consistent with
// whatever Poll already reported.
type faultTransfer struct {
	inner usbendpoint.Transfer
	owner *FaultEndpoint

	decided bool
	dropped bool
	corrupt bool
}

func (t *faultTransfer) Poll() (bool, int, error) {
	done, n, err := t.inner.Poll()
	if !done || err != nil {
		return done, n, err
	}

	if !t.decided && n > 0 {
		t.owner.mu.Lock()
		switch {
		case t.owner.dropReads > 0:
			t.owner.dropReads--
			t.dropped = true
		case t.owner.corruptReads > 0:
			t.owner.corruptReads--
			t.corrupt = true
		}
		t.owner.mu.Unlock()
		t.decided = true
	}

	if t.dropped {
		return true, 0, nil
	}
	return true, n, nil
}

func (t *faultTransfer) Bytes() []byte {
	data := t.inner.Bytes()
	if t.dropped {
		return nil
	}
	if t.corrupt && len(data) > 0 {
		corrupted := append([]byte(nil), data...)
		corrupted[len(corrupted)-1] ^= 0xFF
		return corrupted
	}
	return data
}

func (t *faultTransfer) Cancel() {
	t.inner.Cancel()
}
