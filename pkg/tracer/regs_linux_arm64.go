package tracer

import (
	"debug/elf"
	"fmt"
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// Regs is the struct used by the linux kernel to return the general
// purpose registers for ARM64 CPUs (user_pt_regs).
type Regs struct {
	Regs   [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

const regsBlobSize = int(unsafe.Sizeof(Regs{}))

func (r *Regs) pc() uint64 { return r.Pc }

// RegOffsets maps logical register names to byte offsets into the
// register blob for this architecture.
var RegOffsets = func() map[string]uint64 {
	m := map[string]uint64{
		"sp":     uint64(unsafe.Offsetof(Regs{}.Sp)),
		"pc":     uint64(unsafe.Offsetof(Regs{}.Pc)),
		"pstate": uint64(unsafe.Offsetof(Regs{}.Pstate)),
	}
	for i := 0; i < 31; i++ {
		m[fmt.Sprintf("x%d", i)] = uint64(i * 8)
	}
	return m
}()

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
	PC:          uint64(unsafe.Offsetof(Regs{}.Pc)),
	SP:          uint64(unsafe.Offsetof(Regs{}.Sp)),
	ScratchAddr: 9 * 8, // x9
	Sentinel:    8 * 8, // x8
}

func ptraceGetGRegs(tid int, regs *Regs) error {
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(regs)), Len: uint64(regsBlobSize)}
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_GETREGSET, uintptr(tid), uintptr(elf.NT_PRSTATUS), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceSetGRegs(tid int, regs *Regs) error {
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(regs)), Len: uint64(regsBlobSize)}
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_SETREGSET, uintptr(tid), uintptr(elf.NT_PRSTATUS), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (t *Tracer) getRegs(tid int) (*Regs, error) {
	var (
		regs Regs
		err  error
	)
	ran := t.execPtraceFunc(func() { err = ptraceGetGRegs(tid, &regs) })
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
	ran := t.execPtraceFunc(func() { err = ptraceSetGRegs(tid, regs) })
	if !ran {
		_, st := t.Exited()
		return ErrInferiorExited{Pid: t.pid, Status: st}
	}
	if err != nil {
		return fmt.Errorf("setregs thread %d: %w", tid, err)
	}
	return nil
}
