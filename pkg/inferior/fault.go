package inferior

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// sentinelAddr is the known-invalid address loaded through to force the
// fault. It is non-zero so the resulting fault is unambiguous, and below
// mmap_min_addr so the load can never succeed.
const sentinelAddr = 0x2a

// raiseFault parks the scratch buffer address in the scratch register,
// places sentinel in the sentinel register and loads through it, raising
// an invalid-memory-access fault. When the monitor repairs the sentinel
// register and resumes the thread, the load re-executes against valid
// memory and raiseFault returns. Implemented in assembly per
// architecture; see fault_amd64.s and fault_arm64.s.
func raiseFault(scratch *byte, sentinel uintptr)

// crashAndVerify runs one fault cycle: fill the scratch buffer with the
// pattern the monitor validates, fault, and on resumption check that the
// monitor's cross-process write took effect.
func crashAndVerify(log *logrus.Entry) error {
	buf := make([]byte, ScratchSize)
	for i := range buf {
		buf[i] = byte(i)
	}

	log.Debugf("about to fault, scratch buffer at %p", &buf[0])
	raiseFault(&buf[0], sentinelAddr)

	if err := verifyAdjusted(buf); err != nil {
		return err
	}
	log.Debug("successfully resumed")
	return nil
}

// verifyAdjusted proves the monitor's write_memory reached this address
// space: every pattern byte must have been adjusted while the faulting
// thread was suspended.
func verifyAdjusted(buf []byte) error {
	for i := range buf {
		if want := byte(i) + DataAdjust; buf[i] != want {
			return fmt.Errorf("bad data on resumption: scratch[%d] = %#x, want %#x", i, buf[i], want)
		}
	}
	return nil
}

// crashingPtr is a fixed invalid pointer used by the diagnostic deep
// crash. It is a package variable so the compiler cannot prove the
// dereference unreachable.
var crashingPtr = (*int)(unsafe.Pointer(uintptr(sentinelAddr)))

// leafStackSize keeps the leaf frame from being trivial.
var leafStackSize = 10

// SegfaultDepth is the call chain depth of the diagnostic crash.
const SegfaultDepth = 4

//go:noinline
func segfaultLeaf(n int, p *int) int {
	x := make([]int, n)
	x[0] = *p
	*crashingPtr = x[0]
	return 0
}

//go:noinline
func segfaultDoit1(depth int, p *int) int {
	if depth > 0 {
		useStack := make([]int, depth)
		for i := range useStack {
			useStack[i] = 0x99
		}
		return segfaultDoit2(depth-1, &useStack[0]) + 99
	}
	return segfaultLeaf(leafStackSize, p) + 99
}

//go:noinline
func segfaultDoit2(depth int, p *int) int {
	return segfaultDoit1(depth, p) + *p
}

// Segfault crashes under a call chain of moderate depth. It exists for
// debugging stack inspection and plays no part in the pass/fail verdict.
func Segfault() int {
	i := 0
	return segfaultDoit1(SegfaultDepth, &i)
}
