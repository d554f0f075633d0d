package harness

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/go-warden/warden/pkg/config"
	"github.com/go-warden/warden/pkg/inferior"
)

// TestMain doubles as the inferior: the harness relaunches this test
// binary with WARDEN_TEST_INFERIOR set and the control channel on fd 3.
func TestMain(m *testing.M) {
	if os.Getenv("WARDEN_TEST_INFERIOR") == "1" {
		tries, _ := strconv.Atoi(os.Getenv("WARDEN_TEST_TRIES"))
		threads, _ := strconv.Atoi(os.Getenv("WARDEN_TEST_THREADS"))
		os.Exit(inferior.Main(os.NewFile(3, "ctl"), tries, threads))
	}
	os.Exit(m.Run())
}

func newTestHarness(t *testing.T, cfg *config.Config) *Harness {
	t.Helper()
	h := New(cfg)
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}
	env := append(os.Environ(),
		"WARDEN_TEST_INFERIOR=1",
		fmt.Sprintf("WARDEN_TEST_TRIES=%d", cfg.CrashTries),
		fmt.Sprintf("WARDEN_TEST_THREADS=%d", cfg.ExtraThreads))
	h.SetInferiorCommand([]string{exe}, env)
	return h
}

// runScenario skips instead of failing where ptrace is unavailable,
// such as unprivileged containers.
func runScenario(t *testing.T, name string, fn func() error) {
	t.Helper()
	if err := fn(); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("ptrace unavailable: %v", err)
		}
		t.Fatalf("%s: %v", name, err)
	}
}

func TestCrashRecoveryScenario(t *testing.T) {
	h := newTestHarness(t, config.Default())
	runScenario(t, "crash recovery", h.CrashRecovery)
}

func TestThreadListScenario(t *testing.T) {
	h := newTestHarness(t, config.Default())
	runScenario(t, "thread list", h.ThreadList)
}

// The configured thread count must reach the inferior, not only raise
// the harness's expectation.
func TestThreadListConfiguredCount(t *testing.T) {
	cfg := config.Default()
	cfg.ExtraThreads = 9
	h := newTestHarness(t, cfg)
	runScenario(t, "thread list", h.ThreadList)
}

func TestMemoryWindowScenario(t *testing.T) {
	h := newTestHarness(t, config.Default())
	runScenario(t, "memory window", h.MemoryWindow)
}

func TestRunAllScenarios(t *testing.T) {
	h := newTestHarness(t, config.Default())
	// Probe first so a ptrace-restricted environment skips instead of
	// tripping the watchdog on repeated failures.
	runScenario(t, "crash recovery probe", h.CrashRecovery)

	h.cfg.WatchdogTicks = 120
	if code := h.Run(); code != ExitPass {
		t.Fatalf("Run() exit code = %d, want %d", code, ExitPass)
	}
}
