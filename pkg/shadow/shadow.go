// Package shadow holds the host-side mirror of the remote Wishbone
// register space (C2). The engine is single-threaded (spec §5), so no
// locking is used here: the caller and the parser never run concurrently.
package shadow

import "fmt"

// Map is a byte-addressed mirror of the remote Wishbone address space.
type Map struct {
	buf []byte
}

// New allocates a shadow map of size bytes.
func New(size int) *Map {
	return &Map{buf: make([]byte, size)}
}

// Apply overwrites buf[addr:addr+len(data)] with data. It is called once
// per WOU packet parsed out of an inbound frame (spec §4.6).
func (m *Map) Apply(addr uint16, data []byte) error {
	end := int(addr) + len(data)
	if end > len(m.buf) {
		return fmt.Errorf("shadow: write at addr=0x%04x len=%d exceeds map size %d", addr, len(data), len(m.buf))
	}
	copy(m.buf[addr:end], data)
	return nil
}

// Read returns a copy of buf[addr:addr+n].
func (m *Map) Read(addr uint16, n uint16) ([]byte, error) {
	end := int(addr) + int(n)
	if end > len(m.buf) {
		return nil, fmt.Errorf("shadow: read at addr=0x%04x len=%d exceeds map size %d", addr, n, len(m.buf))
	}
	out := make([]byte, n)
	copy(out, m.buf[addr:end])
	return out, nil
}

// Size returns the map's total byte size.
func (m *Map) Size() int {
	return len(m.buf)
}
