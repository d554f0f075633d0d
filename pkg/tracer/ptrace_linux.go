package tracer

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	isatty "github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"
)

// remoteIovec is like golang.org/x/sys/unix.Iovec but uses uintptr for
// the base field instead of *byte so that we can use it with addresses
// that belong to the inferior.
type remoteIovec struct {
	base uintptr
	len  uintptr
}

// processVMRead calls process_vm_readv.
func processVMRead(pid int, addr uintptr, data []byte) (int, error) {
	localIov := sys.Iovec{Base: &data[0], Len: uint64(len(data))}
	remoteIov := remoteIovec{base: addr, len: uintptr(len(data))}
	n, _, err := syscall.Syscall6(sys.SYS_PROCESS_VM_READV, uintptr(pid), uintptr(unsafe.Pointer(&localIov)), 1, uintptr(unsafe.Pointer(&remoteIov)), 1, 0)
	if err != syscall.Errno(0) {
		return 0, err
	}
	return int(n), nil
}

// processVMWrite calls process_vm_writev.
func processVMWrite(pid int, addr uintptr, data []byte) (int, error) {
	localIov := sys.Iovec{Base: &data[0], Len: uint64(len(data))}
	remoteIov := remoteIovec{base: addr, len: uintptr(len(data))}
	n, _, err := syscall.Syscall6(sys.SYS_PROCESS_VM_WRITEV, uintptr(pid), uintptr(unsafe.Pointer(&localIov)), 1, uintptr(unsafe.Pointer(&remoteIov)), 1, 0)
	if err != syscall.Errno(0) {
		return 0, err
	}
	return int(n), nil
}

// siginfo is the head of the kernel siginfo_t for a fault signal on
// 64-bit: si_signo, si_errno, si_code, padding, then si_addr.
type siginfo struct {
	signo int32
	errno int32
	code  int32
	_     int32
	addr  uint64
	_     [96]byte
}

func (t *Tracer) getSiginfo(tid int) (*siginfo, error) {
	var (
		si  siginfo
		err error
	)
	ran := t.execPtraceFunc(func() {
		_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, syscall.PTRACE_GETSIGINFO, uintptr(tid), 0, uintptr(unsafe.Pointer(&si)), 0, 0)
		if errno != 0 {
			err = errno
		}
	})
	if !ran {
		_, st := t.Exited()
		return nil, ErrInferiorExited{Pid: t.pid, Status: st}
	}
	if err != nil {
		return nil, fmt.Errorf("getsiginfo thread %d: %w", tid, err)
	}
	return &si, nil
}

// attachProcessToTTY makes tty the controlling terminal of the inferior.
func attachProcessToTTY(process *exec.Cmd, tty string) error {
	f, err := os.OpenFile(tty, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if !isatty.IsTerminal(f.Fd()) {
		f.Close()
		return fmt.Errorf("%s is not a terminal", f.Name())
	}
	process.Stdin = f
	process.Stdout = f
	process.Stderr = f
	process.SysProcAttr.Setpgid = false
	process.SysProcAttr.Setsid = true
	process.SysProcAttr.Setctty = true
	return nil
}
