package tracer

import (
	"errors"
	"fmt"
)

// ErrWindowSize is returned when a transfer length does not match the
// window size exactly.
var ErrWindowSize = errors.New("transfer length does not match window size")

// MemWindow is a fixed window of inferior memory, used as the scratch
// area during fault handling. All transfers through the window
// must match its size exactly; there is no truncation or padding.
type MemWindow struct {
	Addr uint64
	Size int
}

// Read fills p from the window. len(p) must equal the window size.
func (w MemWindow) Read(m Memory, p []byte) error {
	if len(p) != w.Size {
		return fmt.Errorf("read %d bytes from %d-byte window at %#x: %w", len(p), w.Size, w.Addr, ErrWindowSize)
	}
	return m.ReadMemory(w.Addr, p)
}

// Write stores p into the window. len(p) must equal the window size.
func (w MemWindow) Write(m Memory, p []byte) error {
	if len(p) != w.Size {
		return fmt.Errorf("write %d bytes to %d-byte window at %#x: %w", len(p), w.Size, w.Addr, ErrWindowSize)
	}
	return m.WriteMemory(w.Addr, p)
}
