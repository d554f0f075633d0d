// Package watchdog enforces an overall deadline on the test run. It is
// orthogonal to pass/fail reporting: when the deadline is reached the
// whole process is terminated with a reserved exit status so that
// automated reporting can tell "hung" from "failed".
package watchdog

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-warden/warden/pkg/logflags"
)

// TimeoutExitCode is the reserved process exit status used when the
// watchdog fires. It is distinct from every pass/fail code.
const TimeoutExitCode = 5

// Watchdog counts down a fixed number of ticks, checking a shared
// completion flag on every tick. There is exactly one watchdog per
// harness run.
type Watchdog struct {
	ticks int
	tick  time.Duration

	done     atomic.Bool
	finished chan struct{}

	// exit terminates the whole process; replaced in tests.
	exit func(code int)

	log *logrus.Entry
}

// New returns a watchdog with a total deadline of ticks*tick.
func New(ticks int, tick time.Duration) *Watchdog {
	return &Watchdog{
		ticks:    ticks,
		tick:     tick,
		finished: make(chan struct{}),
		exit:     os.Exit,
		log:      logflags.WatchdogLogger(),
	}
}

// Start launches the supervisor.
func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) run() {
	for i := 0; i < w.ticks; i++ {
		time.Sleep(w.tick)
		if w.done.Load() {
			w.log.Debug("tests complete, watchdog exiting")
			close(w.finished)
			return
		}
	}
	w.log.Error("WATCHDOG TIMER FIRED")
	// This kills the entire process, not just the supervisor.
	w.exit(TimeoutExitCode)
	close(w.finished)
}

// Done marks the run complete. The supervisor exits quietly at its next
// tick.
func (w *Watchdog) Done() {
	w.done.Store(true)
}

// Stop marks the run complete and joins the supervisor, so that normal
// process exit cannot race a forced termination.
func (w *Watchdog) Stop() {
	w.done.Store(true)
	<-w.finished
}
