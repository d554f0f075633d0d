//go:build amd64 || arm64

package tracer

import "testing"

func TestRegBlobRoundTrip(t *testing.T) {
	var regs Regs
	for name, off := range RegOffsets {
		want := uint64(0x1122334455667788) ^ off
		if err := regToBlob(&regs, off, want); err != nil {
			t.Fatalf("regToBlob(%s): %v", name, err)
		}
		got, err := regFromBlob(&regs, off)
		if err != nil {
			t.Fatalf("regFromBlob(%s): %v", name, err)
		}
		if got != want {
			t.Errorf("register %s = %#x, want %#x", name, got, want)
		}
	}
}

func TestRegBlobBadOffsets(t *testing.T) {
	var regs Regs
	size := uint64(regsBlobSize)
	for _, off := range []uint64{3, 7, size, size + 8, ^uint64(0)} {
		if _, err := regFromBlob(&regs, off); err == nil {
			t.Errorf("regFromBlob accepted offset %d", off)
		}
		if err := regToBlob(&regs, off, 1); err == nil {
			t.Errorf("regToBlob accepted offset %d", off)
		}
	}
}

func TestLayoutOffsets(t *testing.T) {
	offs := map[string]uint64{
		"pc":          Layout.PC,
		"sp":          Layout.SP,
		"scratch ptr": Layout.ScratchAddr,
		"sentinel":    Layout.Sentinel,
	}
	for name, off := range offs {
		if off%8 != 0 {
			t.Errorf("%s register offset %d is not 8-byte aligned", name, off)
		}
		if off+8 > uint64(regsBlobSize) {
			t.Errorf("%s register offset %d outside the %d-byte register file", name, off, regsBlobSize)
		}
	}
	if Layout.ScratchAddr == Layout.Sentinel {
		t.Error("scratch and sentinel registers share an offset")
	}
}

func TestLayoutNamedInRegOffsets(t *testing.T) {
	named := make(map[uint64]bool, len(RegOffsets))
	for _, off := range RegOffsets {
		named[off] = true
	}
	for _, off := range []uint64{Layout.PC, Layout.SP, Layout.ScratchAddr, Layout.Sentinel} {
		if !named[off] {
			t.Errorf("layout offset %d has no named register", off)
		}
	}
}
