package logflags

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	tracer = false
	monitor = false
	ctlmsg = false
	watchdog = false
	harness = false
	inferior = false
}

func TestSetupDisabled(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, ""); err != nil {
		t.Fatalf("Setup(false, \"\"): %v", err)
	}
	if Tracer() || Monitor() || ctlmsg || watchdog || harness || inferior {
		t.Error("component flags set with logging disabled")
	}
}

func TestSetupLogstrWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "tracer"); err != errLogstrWithoutLog {
		t.Fatalf("Setup(false, \"tracer\") error = %v, want %v", err, errLogstrWithoutLog)
	}
}

func TestSetupDefaultComponent(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, ""); err != nil {
		t.Fatalf("Setup(true, \"\"): %v", err)
	}
	if !harness {
		t.Error("harness logging not enabled by default")
	}
	if Tracer() || Monitor() {
		t.Error("unrequested components enabled")
	}
}

func TestSetupComponentList(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "tracer,ctlmsg,inferior"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !Tracer() || !ctlmsg || !inferior {
		t.Error("listed components not enabled")
	}
	if Monitor() || watchdog || harness {
		t.Error("unlisted components enabled")
	}
}

func TestLoggerLevels(t *testing.T) {
	defer resetFlags()
	if lvl := TracerLogger().Logger.Level; lvl != logrus.PanicLevel {
		t.Errorf("disabled tracer logger level = %v, want %v", lvl, logrus.PanicLevel)
	}
	tracer = true
	if lvl := TracerLogger().Logger.Level; lvl != logrus.DebugLevel {
		t.Errorf("enabled tracer logger level = %v, want %v", lvl, logrus.DebugLevel)
	}
}
