//go:build amd64 || arm64

package tracer

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// regsBlob exposes the register struct as its raw kernel byte layout.
// Both supported architectures are little endian.
func regsBlob(regs *Regs) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(regs)), regsBlobSize)
}

// regFromBlob reads the 8-byte register at byte offset off.
func regFromBlob(regs *Regs, off uint64) (uint64, error) {
	blob := regsBlob(regs)
	if off%8 != 0 || off > uint64(len(blob)-8) {
		return 0, fmt.Errorf("register offset %d out of range", off)
	}
	return binary.LittleEndian.Uint64(blob[off : off+8]), nil
}

// regToBlob writes the 8-byte register at byte offset off.
func regToBlob(regs *Regs, off uint64, v uint64) error {
	blob := regsBlob(regs)
	if off%8 != 0 || off > uint64(len(blob)-8) {
		return fmt.Errorf("register offset %d out of range", off)
	}
	binary.LittleEndian.PutUint64(blob[off:off+8], v)
	return nil
}
