package tracer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	sys "golang.org/x/sys/unix"
)

const ptraceOptions = syscall.PTRACE_O_TRACECLONE | sys.PTRACE_O_EXITKILL

// Options configures how the inferior is launched.
type Options struct {
	// WorkDir is the working directory of the inferior.
	WorkDir string
	// Env is the environment of the inferior; os.Environ() when nil.
	// GODEBUG gains asyncpreemptoff=1 either way, so that the runtime
	// does not interleave preemption signals with fault notifications.
	Env []string
	// ChildFiles are inherited by the inferior starting at fd 3.
	ChildFiles []*os.File
	// TTY, when set, becomes the inferior's controlling terminal.
	TTY string
}

// Launch spawns cmd under ptrace and binds the exception port to it.
// First entry in cmd is the program to run, the rest its arguments.
// On return the inferior is running and the port wait loop is live.
func Launch(cmd []string, opts Options) (*Tracer, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("launch: empty command")
	}

	t := newTracer(0)

	var (
		process *exec.Cmd
		err     error
	)
	t.execPtraceFunc(func() {
		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Dir = opts.WorkDir
		process.Env = asyncPreemptOffEnv(opts.Env)
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		process.ExtraFiles = opts.ChildFiles
		process.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:  true,
			Setpgid: true,
		}
		if opts.TTY != "" {
			err = attachProcessToTTY(process, opts.TTY)
			if err != nil {
				return
			}
		}
		err = process.Start()
	})
	if err != nil {
		t.closePtraceThread()
		return nil, fmt.Errorf("launch %s: %w", cmd[0], err)
	}
	t.pid = process.Process.Pid

	// The inferior stops with SIGTRAP at execve before running a single
	// instruction.
	_, status, err := t.waitFast(t.pid)
	if err != nil {
		t.closePtraceThread()
		return nil, fmt.Errorf("waiting for inferior execve: %w", err)
	}
	if status.Exited() {
		t.closePtraceThread()
		return nil, fmt.Errorf("inferior exited before execve, status %d", status.ExitStatus())
	}

	t.execPtraceFunc(func() { err = syscall.PtraceSetOptions(t.pid, ptraceOptions) })
	if err != nil {
		t.closePtraceThread()
		return nil, fmt.Errorf("setting ptrace options: %w", err)
	}
	t.trackThread(t.pid)

	go t.waitLoop()

	if err := t.resumeWithSig(t.pid, 0); err != nil {
		return nil, fmt.Errorf("resuming inferior after launch: %w", err)
	}
	t.log.Debugf("launched inferior pid %d", t.pid)
	return t, nil
}

// asyncPreemptOffEnv returns env with asyncpreemptoff=1 appended to
// GODEBUG, adding the variable if it is not present.
func asyncPreemptOffEnv(env []string) []string {
	if env == nil {
		env = os.Environ()
	}
	out := make([]string, len(env))
	copy(out, env)
	for i := range out {
		if strings.HasPrefix(out[i], "GODEBUG=") {
			out[i] += ",asyncpreemptoff=1"
			return out
		}
	}
	return append(out, "GODEBUG=asyncpreemptoff=1")
}

// waitLoop is the exception port. It reaps every ptrace stop of the
// inferior: clone events and unrelated signals are plumbing and are
// handled internally, faults and process exit become notifications. The
// loop ends, closing the port, when the inferior is gone.
func (t *Tracer) waitLoop() {
	defer close(t.notifications)
	for {
		wpid, status, err := t.wait(-1)
		if err != nil {
			if err == sys.ECHILD {
				t.log.Debugf("wait loop: no more children")
				return
			}
			t.log.Errorf("wait loop: wait: %v", err)
			return
		}
		if status.Exited() || status.Signaled() {
			if wpid == t.pid {
				st := status.ExitStatus()
				if status.Signaled() {
					st = -int(status.Signal())
				}
				t.log.Debugf("inferior exited, status %d", st)
				t.postExit(st)
				t.closePtraceThread()
				t.notify(Notification{Kind: KindGone})
				return
			}
			t.forgetThread(wpid)
			continue
		}

		sig := status.StopSignal()
		if sig == sys.SIGTRAP && status.TrapCause() == sys.PTRACE_EVENT_CLONE {
			if err := t.handleClone(wpid); err != nil {
				t.log.Errorf("wait loop: clone event: %v", err)
			}
			continue
		}
		if isFaultSignal(sig) {
			th := t.trackThread(wpid)
			th.lastSig = int(sig)
			t.notify(Notification{
				Kind:   KindArchFault,
				TID:    wpid,
				Report: t.buildReport(wpid, int(sig)),
			})
			// The thread stays suspended until the monitor resumes it.
			continue
		}
		// Not a fault: forward the signal to the thread.
		t.log.Debugf("forwarding signal %d to thread %d", sig, wpid)
		if err := t.resumeWithSig(wpid, int(sig)); err != nil {
			if err != sys.ESRCH {
				t.log.Errorf("wait loop: forwarding signal %d to %d: %v", sig, wpid, err)
			}
			t.forgetThread(wpid)
		}
	}
}

// handleClone attaches a newly cloned thread and resumes both it and the
// thread that cloned it.
func (t *Tracer) handleClone(wpid int) error {
	var (
		cloned uint
		err    error
	)
	t.execPtraceFunc(func() { cloned, err = sys.PtraceGetEventMsg(wpid) })
	if err != nil {
		if err == sys.ESRCH {
			// thread died while we were adding it
			return nil
		}
		return fmt.Errorf("could not get event message: %w", err)
	}
	tid := int(cloned)

	// The new thread is traced automatically through TRACECLONE; make
	// sure it reached its first stop before resuming it.
	t.execPtraceFunc(func() { err = syscall.PtraceSetOptions(tid, ptraceOptions) })
	if err == sys.ESRCH {
		if _, _, err = t.waitFast(tid); err != nil {
			return fmt.Errorf("waiting for new thread %d: %w", tid, err)
		}
		t.execPtraceFunc(func() { err = syscall.PtraceSetOptions(tid, ptraceOptions) })
	}
	if err != nil && err != sys.ESRCH {
		return fmt.Errorf("could not set options for new thread %d: %w", tid, err)
	}

	t.trackThread(tid)
	t.log.Debugf("thread %d cloned %d", wpid, tid)

	if err := t.resumeWithSig(tid, 0); err != nil && err != sys.ESRCH {
		return fmt.Errorf("could not continue new thread %d: %w", tid, err)
	}
	if err := t.resumeWithSig(wpid, 0); err != nil && err != sys.ESRCH {
		return fmt.Errorf("could not continue thread %d: %w", wpid, err)
	}
	return nil
}

func (t *Tracer) buildReport(tid, sig int) Report {
	r := Report{Signal: sig}
	if si, err := t.getSiginfo(tid); err == nil {
		r.FaultAddr = si.addr
	}
	if regs, err := t.getRegs(tid); err == nil {
		r.PC = regs.pc()
	}
	t.logFaultingInstruction(r.PC)
	return r
}

func isFaultSignal(sig syscall.Signal) bool {
	switch sig {
	case sys.SIGSEGV, sys.SIGBUS, sys.SIGILL, sys.SIGFPE, sys.SIGTRAP:
		return true
	}
	return false
}

func (t *Tracer) waitFast(pid int) (int, *sys.WaitStatus, error) {
	var s sys.WaitStatus
	wpid, err := sys.Wait4(pid, &s, sys.WALL, nil)
	return wpid, &s, err
}

func (t *Tracer) wait(pid int) (int, *sys.WaitStatus, error) {
	var s sys.WaitStatus
	wpid, err := sys.Wait4(pid, &s, sys.WALL, nil)
	return wpid, &s, err
}

// resume continues a suspended thread with the given disposition.
// ResumeHandled suppresses the pending signal so the faulting instruction
// re-executes; ResumeNormal delivers it.
func (t *Tracer) resume(tid int, d ResumeDisposition) error {
	sig := 0
	if d == ResumeNormal {
		if th, ok := t.trackedThread(tid); ok {
			sig = th.lastSig
		}
	}
	return t.resumeWithSig(tid, sig)
}

func (t *Tracer) resumeWithSig(tid, sig int) (err error) {
	if !t.execPtraceFunc(func() { err = sys.PtraceCont(tid, sig) }) {
		_, st := t.Exited()
		return ErrInferiorExited{Pid: t.pid, Status: st}
	}
	return
}

// ReadMemory reads exactly len(p) bytes from the inferior at addr.
func (t *Tracer) ReadMemory(addr uint64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := processVMRead(t.pid, uintptr(addr), p)
	if err != nil {
		return fmt.Errorf("read inferior memory at %#x: %w", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("read inferior memory at %#x: short read %d of %d", addr, n, len(p))
	}
	return nil
}

// WriteMemory writes exactly len(p) bytes to the inferior at addr.
func (t *Tracer) WriteMemory(addr uint64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := processVMWrite(t.pid, uintptr(addr), p)
	if err != nil {
		return fmt.Errorf("write inferior memory at %#x: %w", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("write inferior memory at %#x: short write %d of %d", addr, n, len(p))
	}
	return nil
}

// Threads returns a snapshot of the live thread ids of the inferior.
func (t *Tracer) Threads() ([]ThreadRecord, error) {
	if exited, st := t.Exited(); exited {
		return nil, ErrInferiorExited{Pid: t.pid, Status: st}
	}
	tids, err := filepath.Glob(fmt.Sprintf("/proc/%d/task/*", t.pid))
	if err != nil {
		return nil, err
	}
	recs := make([]ThreadRecord, 0, len(tids))
	for _, tidpath := range tids {
		tid, err := strconv.Atoi(filepath.Base(tidpath))
		if err != nil {
			return nil, fmt.Errorf("enumerate threads: %w", err)
		}
		recs = append(recs, ThreadRecord{Koid: tid})
	}
	return recs, nil
}

// Kill forcibly terminates the inferior and waits for the port to close.
func (t *Tracer) Kill() error {
	if exited, _ := t.Exited(); exited {
		return nil
	}
	if err := sys.Kill(-t.pid, sys.SIGKILL); err != nil {
		return fmt.Errorf("kill inferior: %w", err)
	}
	t.Drain()
	return nil
}

// Drain consumes remaining notifications until the port closes. Used
// during teardown when no monitor is attached to the port.
func (t *Tracer) Drain() {
	for {
		if _, err := t.Wait(); err != nil {
			return
		}
	}
}
