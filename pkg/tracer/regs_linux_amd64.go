package tracer

import (
	"fmt"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// Regs is the struct used by the linux kernel to return the general
// purpose registers for AMD64 CPUs.
type Regs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

const regsBlobSize = int(unsafe.Sizeof(Regs{}))

func (r *Regs) pc() uint64 { return r.Rip }

// RegOffsets maps logical register names to byte offsets into the
// register blob for this architecture.
var RegOffsets = map[string]uint64{
	"r15":    uint64(unsafe.Offsetof(Regs{}.R15)),
	"r14":    uint64(unsafe.Offsetof(Regs{}.R14)),
	"r13":    uint64(unsafe.Offsetof(Regs{}.R13)),
	"r12":    uint64(unsafe.Offsetof(Regs{}.R12)),
	"rbp":    uint64(unsafe.Offsetof(Regs{}.Rbp)),
	"rbx":    uint64(unsafe.Offsetof(Regs{}.Rbx)),
	"r11":    uint64(unsafe.Offsetof(Regs{}.R11)),
	"r10":    uint64(unsafe.Offsetof(Regs{}.R10)),
	"r9":     uint64(unsafe.Offsetof(Regs{}.R9)),
	"r8":     uint64(unsafe.Offsetof(Regs{}.R8)),
	"rax":    uint64(unsafe.Offsetof(Regs{}.Rax)),
	"rcx":    uint64(unsafe.Offsetof(Regs{}.Rcx)),
	"rdx":    uint64(unsafe.Offsetof(Regs{}.Rdx)),
	"rsi":    uint64(unsafe.Offsetof(Regs{}.Rsi)),
	"rdi":    uint64(unsafe.Offsetof(Regs{}.Rdi)),
	"rip":    uint64(unsafe.Offsetof(Regs{}.Rip)),
	"eflags": uint64(unsafe.Offsetof(Regs{}.Eflags)),
	"rsp":    uint64(unsafe.Offsetof(Regs{}.Rsp)),
}

// RegLayout gives the offsets of the registers the fault protocol
// touches. The scratch register carries the scratch buffer address set
// by the fault generator, the sentinel register causes the fault.
type RegLayout struct {
	PC          uint64
	SP          uint64
	ScratchAddr uint64
	Sentinel    uint64
}

// Layout is the register layout for the architecture selected at build
// time. See raiseFault in pkg/inferior for the register roles.
var Layout = RegLayout{
	PC:          uint64(unsafe.Offsetof(Regs{}.Rip)),
	SP:          uint64(unsafe.Offsetof(Regs{}.Rsp)),
	ScratchAddr: uint64(unsafe.Offsetof(Regs{}.R9)),
	Sentinel:    uint64(unsafe.Offsetof(Regs{}.R8)),
}

func (t *Tracer) getRegs(tid int) (*Regs, error) {
	var (
		regs Regs
		err  error
	)
	ran := t.execPtraceFunc(func() {
		err = sys.PtraceGetRegs(tid, (*sys.PtraceRegs)(unsafe.Pointer(&regs)))
	})
	if !ran {
		_, st := t.Exited()
		return nil, ErrInferiorExited{Pid: t.pid, Status: st}
	}
	if err != nil {
		return nil, fmt.Errorf("getregs thread %d: %w", tid, err)
	}
	return &regs, nil
}

func (t *Tracer) setRegs(tid int, regs *Regs) error {
	var err error
	ran := t.execPtraceFunc(func() {
		err = sys.PtraceSetRegs(tid, (*sys.PtraceRegs)(unsafe.Pointer(regs)))
	})
	if !ran {
		_, st := t.Exited()
		return ErrInferiorExited{Pid: t.pid, Status: st}
	}
	if err != nil {
		return fmt.Errorf("setregs thread %d: %w", tid, err)
	}
	return nil
}

