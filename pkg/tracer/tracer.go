// Package tracer attaches to the inferior process and exposes the kernel
// collaborator surface the harness needs: a blocking exception
// notification port, thread resolution, register access by byte offset
// and exact-length memory transfer.
package tracer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-warden/warden/pkg/logflags"
)

// ErrPortClosed is returned by Wait once the notification port has been
// drained after the tracer detached or the inferior went away.
var ErrPortClosed = errors.New("exception port closed")

// ErrHandleClosed is returned when a ThreadHandle is used after Close.
var ErrHandleClosed = errors.New("thread handle already closed")

// ErrInferiorExited indicates an operation on an inferior that is gone.
type ErrInferiorExited struct {
	Pid    int
	Status int
}

func (e ErrInferiorExited) Error() string {
	return fmt.Sprintf("inferior %d has exited with status %d", e.Pid, e.Status)
}

// Thread is the transient capability obtained by resolving a faulting
// thread id. It is owned exclusively by the current monitor iteration and
// must be released exactly once.
type Thread interface {
	// GetReg reads the 8-byte register at the given byte offset into
	// the architecture register blob.
	GetReg(off uint64) (uint64, error)
	// SetReg writes the 8-byte register at the given byte offset.
	SetReg(off uint64, v uint64) error
	// Resume continues the suspended thread with the given disposition.
	Resume(d ResumeDisposition) error
	// Kind reports the kernel object kind behind the handle.
	Kind() (ObjKind, error)
	// Close releases the handle. A second Close is an error.
	Close() error
}

// Memory is exact-length access to the inferior address space. A short
// transfer is an error, never a truncation.
type Memory interface {
	ReadMemory(addr uint64, p []byte) error
	WriteMemory(addr uint64, p []byte) error
}

// Process is the inferior surface consumed by the exception monitor.
type Process interface {
	Memory
	ResolveThread(tid int) (Thread, error)
}

// ThreadRecord describes one live thread at enumeration time.
type ThreadRecord struct {
	Koid int
}

// Tracer owns the traced inferior: its pid, the control of its threads
// and the exception notification port. All ptrace requests are funneled
// to a single locked OS thread, since the kernel requires them to come
// from the tracing thread.
type Tracer struct {
	pid int

	notifications chan Notification

	ptraceChan     chan func()
	ptraceDoneChan chan struct{}
	ptraceMu       sync.Mutex
	ptraceClosed   bool

	mu         sync.Mutex
	threads    map[int]*traceeThread
	exited     bool
	exitStatus int

	log *logrus.Entry
}

// traceeThread is the tracer's bookkeeping for one thread of the
// inferior. It is distinct from ThreadHandle, which is the transient
// capability handed to the monitor.
type traceeThread struct {
	tid     int
	lastSig int
}

func newTracer(pid int) *Tracer {
	t := &Tracer{
		pid:            pid,
		notifications:  make(chan Notification, 8),
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan struct{}),
		threads:        make(map[int]*traceeThread),
		log:            logflags.TracerLogger(),
	}
	go t.handlePtraceFuncs()
	return t
}

// Pid returns the inferior process id.
func (t *Tracer) Pid() int {
	return t.pid
}

// Wait blocks on the exception port until the next notification. It
// returns ErrPortClosed once the port is drained and closed.
func (t *Tracer) Wait() (Notification, error) {
	n, ok := <-t.notifications
	if !ok {
		return Notification{}, ErrPortClosed
	}
	return n, nil
}

// Exited reports whether the inferior is gone, and its wait status.
func (t *Tracer) Exited() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited, t.exitStatus
}

func (t *Tracer) handlePtraceFuncs() {
	// ptrace(2) expects all requests after the attach to come from the
	// same thread that attached.
	runtime.LockOSThread()
	for fn := range t.ptraceChan {
		fn()
		t.ptraceDoneChan <- struct{}{}
	}
}

// execPtraceFunc runs fn on the tracing thread. It reports false, without
// running fn, if the tracing thread is gone because the inferior exited.
func (t *Tracer) execPtraceFunc(fn func()) bool {
	t.ptraceMu.Lock()
	defer t.ptraceMu.Unlock()
	if t.ptraceClosed {
		return false
	}
	t.ptraceChan <- fn
	<-t.ptraceDoneChan
	return true
}

func (t *Tracer) closePtraceThread() {
	t.ptraceMu.Lock()
	defer t.ptraceMu.Unlock()
	if !t.ptraceClosed {
		t.ptraceClosed = true
		close(t.ptraceChan)
	}
}

func (t *Tracer) postExit(status int) {
	t.mu.Lock()
	t.exited = true
	t.exitStatus = status
	t.mu.Unlock()
}

func (t *Tracer) notify(n Notification) {
	t.log.Debugf("notification: kind=%v tid=%d sig=%d pc=%#x addr=%#x",
		n.Kind, n.TID, n.Report.Signal, n.Report.PC, n.Report.FaultAddr)
	t.notifications <- n
}

func (t *Tracer) trackThread(tid int) *traceeThread {
	t.mu.Lock()
	defer t.mu.Unlock()
	if th, ok := t.threads[tid]; ok {
		return th
	}
	th := &traceeThread{tid: tid}
	t.threads[tid] = th
	return th
}

func (t *Tracer) forgetThread(tid int) {
	t.mu.Lock()
	delete(t.threads, tid)
	t.mu.Unlock()
}

func (t *Tracer) trackedThread(tid int) (*traceeThread, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.threads[tid]
	return th, ok
}
