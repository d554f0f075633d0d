package tracer

import "fmt"

// Kind classifies an exception notification.
type Kind int

const (
	// KindArchFault is a hardware fault raised by a thread of the
	// inferior (invalid memory access, illegal instruction, trap).
	KindArchFault Kind = iota
	// KindGone means the inferior process has exited.
	KindGone
)

func (k Kind) String() string {
	switch k {
	case KindArchFault:
		return "arch-fault"
	case KindGone:
		return "gone"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Report carries the architecture detail of a fault.
type Report struct {
	Signal    int    // signal number that stopped the thread
	PC        uint64 // program counter at the fault
	FaultAddr uint64 // faulting data address, from siginfo
}

// Notification describes one caught fault. It is produced by the tracer
// wait loop and consumed immediately by the monitor; it is not retained.
type Notification struct {
	Kind   Kind
	TID    int // thread id of the faulting thread; 0 for KindGone
	Report Report
}

// ResumeDisposition selects how a suspended thread continues.
type ResumeDisposition int

const (
	// ResumeNormal delivers the pending signal to the thread.
	ResumeNormal ResumeDisposition = iota
	// ResumeHandled suppresses the pending signal; the faulting
	// instruction is re-executed.
	ResumeHandled
)

// ObjKind is the kernel object kind reported for a resolved handle.
type ObjKind int

const (
	ObjUnknown ObjKind = iota
	ObjThread
)

func (k ObjKind) String() string {
	if k == ObjThread {
		return "thread"
	}
	return "unknown"
}
