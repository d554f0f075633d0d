// Package monitor implements the exception monitor: it blocks on the
// tracer's notification port, validates the inferior's pre-fault state,
// repairs the register that caused the fault and resumes the thread,
// for a fixed number of fault cycles.
package monitor

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/go-warden/warden/pkg/logflags"
	"github.com/go-warden/warden/pkg/tracer"
)

// Port is the blocking exception notification source.
type Port interface {
	Wait() (tracer.Notification, error)
}

// Config controls one monitor run.
type Config struct {
	// Tries is the number of fault cycles to handle.
	Tries int
	// WindowSize is the size of the inferior's scratch buffer.
	WindowSize int
	// DataAdjust is added to every scratch byte; the inferior verifies
	// the adjustment after it is resumed.
	DataAdjust byte
	// StrictWindow additionally exercises the window's exact-length
	// contract on every fault: a read-back of the written bytes must
	// succeed and mismatched transfer lengths must fail.
	StrictWindow bool
}

// Monitor drives the fix-up-and-resume cycle.
type Monitor struct {
	port Port
	proc tracer.Process
	cfg  Config

	fixups int
	log    *logrus.Entry
}

// New returns a monitor bound to a port and the process accessors.
func New(port Port, proc tracer.Process, cfg Config) *Monitor {
	return &Monitor{port: port, proc: proc, cfg: cfg, log: logflags.MonitorLogger()}
}

// Fixups returns the number of completed fix-up-and-resume cycles.
func (m *Monitor) Fixups() int {
	return m.fixups
}

// Run blocks on the port and handles exactly cfg.Tries fault
// notifications. The inferior going away before that, any other
// notification kind and any accessor failure are hard errors; there are
// no retries.
func (m *Monitor) Run() error {
	for i := 0; i < m.cfg.Tries; i++ {
		m.log.Debugf("waiting on inferior, cycle %d of %d", i+1, m.cfg.Tries)
		n, err := m.port.Wait()
		if err != nil {
			return fmt.Errorf("wait for exception: %w", err)
		}
		switch n.Kind {
		case tracer.KindGone:
			return fmt.Errorf("inferior gone after %d of %d fault cycles", i, m.cfg.Tries)
		case tracer.KindArchFault:
			if err := m.handleFault(n); err != nil {
				return fmt.Errorf("fault cycle %d: %w", i+1, err)
			}
		default:
			return fmt.Errorf("unexpected notification kind %v", n.Kind)
		}
	}
	return nil
}

// handleFault services one architecture exception: resolve the faulting
// thread, validate and mutate the scratch window, repair the sentinel
// register and resume with the handled disposition.
func (m *Monitor) handleFault(n tracer.Notification) (err error) {
	m.log.Debugf("got exception: tid=%d sig=%d pc=%#x addr=%#x",
		n.TID, n.Report.Signal, n.Report.PC, n.Report.FaultAddr)

	th, err := m.proc.ResolveThread(n.TID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := th.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	m.dumpRegs(th)

	if err := m.adjustScratch(th); err != nil {
		return err
	}
	if err := m.fixSentinel(th); err != nil {
		return err
	}
	if err := th.Resume(tracer.ResumeHandled); err != nil {
		return fmt.Errorf("resume thread %d: %w", n.TID, err)
	}
	m.fixups++
	return nil
}

// adjustScratch validates the pattern the fault generator placed in its
// scratch buffer and applies the adjustment the inferior will verify
// once resumed. The buffer address is read from the scratch register.
func (m *Monitor) adjustScratch(th tracer.Thread) error {
	addr, err := th.GetReg(tracer.Layout.ScratchAddr)
	if err != nil {
		return err
	}
	win := tracer.MemWindow{Addr: addr, Size: m.cfg.WindowSize}

	buf := make([]byte, win.Size)
	if err := win.Read(m.proc, buf); err != nil {
		return err
	}
	for i, b := range buf {
		if b != byte(i) {
			return fmt.Errorf("scratch byte %d is %#x, want %#x", i, b, byte(i))
		}
	}
	for i := range buf {
		buf[i] += m.cfg.DataAdjust
	}
	if err := win.Write(m.proc, buf); err != nil {
		return err
	}
	if m.cfg.StrictWindow {
		return m.checkWindowContract(win, buf)
	}
	// Verification of the write happens in the inferior.
	return nil
}

// checkWindowContract reads back the window and probes the exact-length
// rule with mismatched transfer sizes.
func (m *Monitor) checkWindowContract(win tracer.MemWindow, want []byte) error {
	got := make([]byte, win.Size)
	if err := win.Read(m.proc, got); err != nil {
		return err
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("window byte %d read back as %#x, want %#x", i, got[i], want[i])
		}
	}
	for _, n := range []int{win.Size / 2, win.Size * 2} {
		if err := win.Read(m.proc, make([]byte, n)); err == nil {
			return fmt.Errorf("window read of %d bytes succeeded, want size mismatch failure", n)
		}
	}
	return nil
}

// fixSentinel repairs the register that caused the fault by pointing it
// at the thread's stack, which is always mapped.
func (m *Monitor) fixSentinel(th tracer.Thread) error {
	m.log.Debug("fixing inferior fault")
	sp, err := th.GetReg(tracer.Layout.SP)
	if err != nil {
		return err
	}
	return th.SetReg(tracer.Layout.Sentinel, sp)
}

// dumpRegs logs the full register file of a suspended thread.
func (m *Monitor) dumpRegs(th tracer.Thread) {
	if !logflags.Monitor() {
		return
	}
	names := make([]string, 0, len(tracer.RegOffsets))
	for name := range tracer.RegOffsets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := th.GetReg(tracer.RegOffsets[name])
		if err != nil {
			m.log.Debugf("  %-8s <error: %v>", name, err)
			continue
		}
		m.log.Debugf("  %-8s %#016x", name, v)
	}
}
