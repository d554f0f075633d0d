// Package logflags enables selective logging for the components of the
// harness. Log output is disabled by default and turned on per component
// through the --log-output flag.
package logflags

import (
	"errors"
	"io"
	"log"
	"os"
	"strings"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var tracer = false
var monitor = false
var ctlmsg = false
var watchdog = false
var harness = false
var inferior = false

func logOut() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return colorable.NewColorableStderr()
	}
	return os.Stderr
}

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	lg := logrus.New()
	lg.Out = logOut()
	lg.Level = logrus.DebugLevel
	if !flag {
		lg.Level = logrus.PanicLevel
	}
	return lg.WithFields(fields)
}

// Tracer returns true if the tracer package should log.
func Tracer() bool {
	return tracer
}

// TracerLogger returns a logger for the ptrace tracer.
func TracerLogger() *logrus.Entry {
	return makeLogger(tracer, logrus.Fields{"layer": "tracer"})
}

// Monitor returns true if the exception monitor should log.
func Monitor() bool {
	return monitor
}

// MonitorLogger returns a logger for the exception monitor.
func MonitorLogger() *logrus.Entry {
	return makeLogger(monitor, logrus.Fields{"layer": "monitor"})
}

// CtlMsgLogger returns a logger for the control channel.
func CtlMsgLogger() *logrus.Entry {
	return makeLogger(ctlmsg, logrus.Fields{"layer": "ctlmsg"})
}

// WatchdogLogger returns a logger for the watchdog supervisor.
func WatchdogLogger() *logrus.Entry {
	return makeLogger(watchdog, logrus.Fields{"layer": "watchdog"})
}

// HarnessLogger returns a logger for scenario orchestration.
func HarnessLogger() *logrus.Entry {
	return makeLogger(harness, logrus.Fields{"layer": "harness"})
}

// InferiorLogger returns a logger for the inferior side.
func InferiorLogger() *logrus.Entry {
	return makeLogger(inferior, logrus.Fields{"layer": "inferior"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the component flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "harness"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "tracer":
			tracer = true
		case "monitor":
			monitor = true
		case "ctlmsg":
			ctlmsg = true
		case "watchdog":
			watchdog = true
		case "harness":
			harness = true
		case "inferior":
			inferior = true
		}
	}
	return nil
}
