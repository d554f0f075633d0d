package tracer

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// sliceMemory backs the Memory interface with a plain byte slice rooted
// at a fixed base address.
type sliceMemory struct {
	base uint64
	data []byte
}

func (m *sliceMemory) ReadMemory(addr uint64, p []byte) error {
	off := addr - m.base
	if addr < m.base || int(off)+len(p) > len(m.data) {
		return fmt.Errorf("read of %d bytes at %#x outside mapping", len(p), addr)
	}
	copy(p, m.data[off:])
	return nil
}

func (m *sliceMemory) WriteMemory(addr uint64, p []byte) error {
	off := addr - m.base
	if addr < m.base || int(off)+len(p) > len(m.data) {
		return fmt.Errorf("write of %d bytes at %#x outside mapping", len(p), addr)
	}
	copy(m.data[off:], p)
	return nil
}

func TestMemWindowRoundTrip(t *testing.T) {
	mem := &sliceMemory{base: 0x1000, data: make([]byte, 8)}
	win := MemWindow{Addr: 0x1000, Size: 8}

	in := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	if err := win.Write(mem, in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := make([]byte, 8)
	if err := win.Read(mem, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("read back %v, want %v", out, in)
	}
}

func TestMemWindowExactLength(t *testing.T) {
	mem := &sliceMemory{base: 0x1000, data: make([]byte, 32)}
	win := MemWindow{Addr: 0x1000, Size: 8}

	for _, n := range []int{0, 4, 7, 9, 16} {
		if err := win.Read(mem, make([]byte, n)); !errors.Is(err, ErrWindowSize) {
			t.Errorf("Read of %d bytes: error = %v, want %v", n, err, ErrWindowSize)
		}
		if err := win.Write(mem, make([]byte, n)); !errors.Is(err, ErrWindowSize) {
			t.Errorf("Write of %d bytes: error = %v, want %v", n, err, ErrWindowSize)
		}
	}
}

func TestMemWindowUnmapped(t *testing.T) {
	mem := &sliceMemory{base: 0x1000, data: make([]byte, 8)}
	win := MemWindow{Addr: 0x2000, Size: 8}

	if err := win.Read(mem, make([]byte, 8)); err == nil {
		t.Error("Read outside the mapping succeeded")
	}
	if err := win.Write(mem, make([]byte, 8)); err == nil {
		t.Error("Write outside the mapping succeeded")
	}
}
