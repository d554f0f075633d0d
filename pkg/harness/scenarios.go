package harness

import (
	"fmt"

	"github.com/go-warden/warden/pkg/ctlmsg"
	"github.com/go-warden/warden/pkg/inferior"
	"github.com/go-warden/warden/pkg/monitor"
	"github.com/go-warden/warden/pkg/tracer"
)

// CrashRecovery requests CrashTries fault cycles and verifies the
// monitor performed exactly that many fix-ups before the inferior
// reported recovery.
func (h *Harness) CrashRecovery() error {
	return h.runCrash(false)
}

// MemoryWindow re-runs the crash cycle with the monitor's strict window
// checks: write then read back the scratch window at its exact size, and
// require mismatched transfer lengths to fail.
func (h *Harness) MemoryWindow() error {
	return h.runCrash(true)
}

func (h *Harness) runCrash(strictWindow bool) error {
	t, conn, err := h.setup()
	if err != nil {
		return err
	}

	m := monitor.New(t, t, monitor.Config{
		Tries:        h.cfg.CrashTries,
		WindowSize:   inferior.ScratchSize,
		DataAdjust:   inferior.DataAdjust,
		StrictWindow: strictWindow,
	})
	monDone := make(chan error, 1)
	go func() { monDone <- m.Run() }()

	if err := conn.Call(ctlmsg.Crash, ctlmsg.RecoveredFromCrash); err != nil {
		h.teardown(t, conn)
		<-monDone
		return err
	}

	h.log.Debug("waiting for monitor")
	if err := <-monDone; err != nil {
		h.teardown(t, conn)
		return err
	}
	if got := m.Fixups(); got != h.cfg.CrashTries {
		h.teardown(t, conn)
		return fmt.Errorf("%d register fix-ups, want %d", got, h.cfg.CrashTries)
	}

	return h.shutdown(t, conn)
}

// ThreadList requests ExtraThreads parked workers and verifies that
// thread enumeration yields at least 1 + ExtraThreads records, each of
// which resolves to a handle of kind thread.
func (h *Harness) ThreadList() error {
	t, conn, err := h.setup()
	if err != nil {
		return err
	}

	if err := conn.Call(ctlmsg.StartExtraThreads, ctlmsg.ExtraThreadsStarted); err != nil {
		h.teardown(t, conn)
		return err
	}

	recs, err := t.Threads()
	if err != nil {
		h.teardown(t, conn)
		return err
	}
	if len(recs) < 1+h.cfg.ExtraThreads {
		h.teardown(t, conn)
		return fmt.Errorf("enumerated %d threads, want at least %d", len(recs), 1+h.cfg.ExtraThreads)
	}
	for _, rec := range recs {
		if err := h.checkThreadRecord(t, rec); err != nil {
			h.teardown(t, conn)
			return err
		}
	}

	return h.shutdown(t, conn)
}

func (h *Harness) checkThreadRecord(t *tracer.Tracer, rec tracer.ThreadRecord) error {
	h.log.Debugf("looking up thread %d", rec.Koid)
	th, err := t.ResolveThread(rec.Koid)
	if err != nil {
		return fmt.Errorf("thread %d: %w", rec.Koid, err)
	}
	defer th.Close()
	kind, err := th.Kind()
	if err != nil {
		return fmt.Errorf("thread %d: %w", rec.Koid, err)
	}
	if kind != tracer.ObjThread {
		return fmt.Errorf("thread %d: object kind %v, want %v", rec.Koid, kind, tracer.ObjThread)
	}
	return nil
}
