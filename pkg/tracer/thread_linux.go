package tracer

import (
	"fmt"
	"strconv"
	"strings"

	sys "golang.org/x/sys/unix"
)

// ThreadHandle is a transient capability over one thread of the
// inferior, backed by a procfs task directory descriptor. It is valid
// until Close, which must be called exactly once.
type ThreadHandle struct {
	tid    int
	fd     int
	t      *Tracer
	closed bool
}

// ResolveThread resolves a thread id from a notification to a handle.
func (t *Tracer) ResolveThread(tid int) (Thread, error) {
	fd, err := sys.Open(fmt.Sprintf("/proc/%d/task/%d", t.pid, tid), sys.O_RDONLY|sys.O_DIRECTORY|sys.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("resolve thread %d: %w", tid, err)
	}
	return &ThreadHandle{tid: tid, fd: fd, t: t}, nil
}

// TID returns the thread id behind the handle.
func (h *ThreadHandle) TID() int {
	return h.tid
}

// GetReg reads the 8-byte register at the given blob offset.
func (h *ThreadHandle) GetReg(off uint64) (uint64, error) {
	if h.closed {
		return 0, ErrHandleClosed
	}
	regs, err := h.t.getRegs(h.tid)
	if err != nil {
		return 0, err
	}
	return regFromBlob(regs, off)
}

// SetReg writes the 8-byte register at the given blob offset. The whole
// blob is read back, patched and written, as the kernel interface is a
// full register set transfer.
func (h *ThreadHandle) SetReg(off uint64, v uint64) error {
	if h.closed {
		return ErrHandleClosed
	}
	regs, err := h.t.getRegs(h.tid)
	if err != nil {
		return err
	}
	if err := regToBlob(regs, off, v); err != nil {
		return err
	}
	return h.t.setRegs(h.tid, regs)
}

// Resume continues the suspended thread with the given disposition.
func (h *ThreadHandle) Resume(d ResumeDisposition) error {
	if h.closed {
		return ErrHandleClosed
	}
	return h.t.resume(h.tid, d)
}

// Kind reports the kernel object kind behind the handle: ObjThread when
// the task directory belongs to a live thread of the inferior.
func (h *ThreadHandle) Kind() (ObjKind, error) {
	if h.closed {
		return ObjUnknown, ErrHandleClosed
	}
	fd, err := sys.Openat(h.fd, "status", sys.O_RDONLY|sys.O_CLOEXEC, 0)
	if err != nil {
		return ObjUnknown, fmt.Errorf("thread %d kind: %w", h.tid, err)
	}
	defer sys.Close(fd)
	buf := make([]byte, 4096)
	n, err := sys.Read(fd, buf)
	if err != nil {
		return ObjUnknown, fmt.Errorf("thread %d kind: %w", h.tid, err)
	}
	tgid, err := statusTgid(string(buf[:n]))
	if err != nil {
		return ObjUnknown, fmt.Errorf("thread %d kind: %w", h.tid, err)
	}
	if tgid != h.t.pid {
		return ObjUnknown, nil
	}
	return ObjThread, nil
}

// Close releases the handle. Calling Close twice is an error.
func (h *ThreadHandle) Close() error {
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	return sys.Close(h.fd)
}

// statusTgid extracts the Tgid field from a procfs status blob.
func statusTgid(status string) (int, error) {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "Tgid:") {
			continue
		}
		return strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Tgid:")))
	}
	return 0, fmt.Errorf("no Tgid in status")
}
