// Package harness orchestrates the fault-injection scenarios: it
// launches the inferior, drives it over the control channel while the
// exception monitor services its faults, and records per-scenario
// results under the watchdog's deadline.
//
// Known limitation: the harness does not inspect the inferior's exit
// status after shutdown, so a child-side verification failure (reserved
// exit code inferior.ExitVerifyFailure) is observable only out of band.
package harness

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/go-warden/warden/pkg/config"
	"github.com/go-warden/warden/pkg/ctlmsg"
	"github.com/go-warden/warden/pkg/logflags"
	"github.com/go-warden/warden/pkg/tracer"
	"github.com/go-warden/warden/pkg/watchdog"
)

// Harness exit codes. The watchdog's reserved code and the inferior's
// reserved codes live with their owners.
const (
	ExitPass = 0
	ExitFail = 1
)

// Harness runs the scenario suite against freshly launched inferiors.
type Harness struct {
	cfg *config.Config

	// inferiorCmd overrides the launched command; used by tests. When
	// nil the harness re-executes its own binary in inferior mode.
	inferiorCmd []string
	inferiorEnv []string

	log *logrus.Entry
}

// New returns a harness for the given configuration.
func New(cfg *config.Config) *Harness {
	return &Harness{cfg: cfg, log: logflags.HarnessLogger()}
}

// SetInferiorCommand overrides how the inferior is spawned. cmd is the
// full argv; env, when non-nil, replaces the inherited environment.
func (h *Harness) SetInferiorCommand(cmd []string, env []string) {
	h.inferiorCmd = cmd
	h.inferiorEnv = env
}

// Run executes every scenario under the watchdog and returns the
// process exit code. A failed scenario is recorded and the remaining
// scenarios still run; only the watchdog terminates the process early.
func (h *Harness) Run() int {
	wd := watchdog.New(h.cfg.WatchdogTicks, h.cfg.WatchdogTick)
	wd.Start()
	defer wd.Stop()

	scenarios := []struct {
		name string
		fn   func() error
	}{
		{"crash-recovery", h.CrashRecovery},
		{"thread-list", h.ThreadList},
		{"memory-window", h.MemoryWindow},
	}

	failures := 0
	for _, s := range scenarios {
		h.log.Infof("running %s", s.name)
		if err := s.fn(); err != nil {
			h.log.Errorf("FAIL %s: %v", s.name, err)
			failures++
			continue
		}
		h.log.Infof("PASS %s", s.name)
	}

	if failures > 0 {
		return ExitFail
	}
	return ExitPass
}

// setup launches a fresh inferior under the tracer, binds the control
// channel and checks liveness with a ping.
func (h *Harness) setup() (*tracer.Tracer, *ctlmsg.Conn, error) {
	parent, child, err := ctlmsg.Pair()
	if err != nil {
		return nil, nil, err
	}

	cmd := h.inferiorCmd
	if cmd == nil {
		exe, err := os.Executable()
		if err != nil {
			parent.Close()
			child.Close()
			return nil, nil, fmt.Errorf("locate own binary: %w", err)
		}
		cmd = []string{exe, "inferior",
			fmt.Sprintf("--tries=%d", h.cfg.CrashTries),
			fmt.Sprintf("--extra-threads=%d", h.cfg.ExtraThreads)}
		extra, err := h.cfg.ParsedInferiorArgs()
		if err != nil {
			parent.Close()
			child.Close()
			return nil, nil, err
		}
		cmd = append(cmd, extra...)
	}

	t, err := tracer.Launch(cmd, tracer.Options{
		Env:        h.inferiorEnv,
		ChildFiles: []*os.File{child},
		TTY:        h.cfg.TTY,
	})
	child.Close()
	if err != nil {
		parent.Close()
		return nil, nil, err
	}

	conn := ctlmsg.New(parent)
	if err := conn.Call(ctlmsg.Ping, ctlmsg.Pong); err != nil {
		t.Kill()
		conn.Close()
		return nil, nil, fmt.Errorf("inferior liveness check: %w", err)
	}
	return t, conn, nil
}

// shutdown ends the inferior in order: DONE over the channel, then a
// drain of the exception port until the process is gone. The child's
// exit status is deliberately not inspected here.
func (h *Harness) shutdown(t *tracer.Tracer, conn *ctlmsg.Conn) error {
	defer conn.Close()
	if err := conn.Send(ctlmsg.Done); err != nil {
		t.Kill()
		return err
	}
	t.Drain()
	return nil
}

// teardown force-kills the inferior; used on scenario failure paths.
func (h *Harness) teardown(t *tracer.Tracer, conn *ctlmsg.Conn) {
	conn.Close()
	t.Kill()
}
