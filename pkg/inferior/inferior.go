// Package inferior is the side of the harness that runs inside the
// child process. It serves the control channel message loop and
// deliberately raises recoverable CPU faults for the monitor to fix.
package inferior

import (
	"os"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-warden/warden/pkg/ctlmsg"
	"github.com/go-warden/warden/pkg/logflags"
)

const (
	// ScratchSize is the size of the fault generator's scratch buffer.
	ScratchSize = 8
	// DataAdjust is the value the monitor adds to every scratch byte
	// while the faulting thread is suspended.
	DataAdjust = 0x10
	// DefaultCrashTries is the number of fault cycles per CRASH request.
	DefaultCrashTries = 4
	// ExtraThreads is the default number of parked worker threads
	// spawned on a START_EXTRA_THREADS request.
	ExtraThreads = 4
)

// Reserved child exit codes, signaled out of band of the control
// channel.
const (
	// ExitDone is the normal completion status of the inferior.
	ExitDone = 66
	// ExitLoopFailure: the message loop failed (channel error).
	ExitLoopFailure = 20
	// ExitVerifyFailure: the monitor's cross-process mutation did not
	// take effect after a resume.
	ExitVerifyFailure = 21
)

// Main runs the inferior: a message loop over the inherited control
// channel end. It returns the process exit code.
func Main(ctl *os.File, tries, extraThreads int) int {
	log := logflags.InferiorLogger()
	if tries <= 0 {
		tries = DefaultCrashTries
	}
	if extraThreads <= 0 {
		extraThreads = ExtraThreads
	}
	conn := ctlmsg.New(ctl)
	if err := msgLoop(conn, tries, extraThreads, log); err != nil {
		log.Errorf("message loop: %v", err)
		return ExitLoopFailure
	}
	log.Debug("inferior done")
	return ExitDone
}

// msgLoop serves control requests until DONE arrives. Unknown messages
// are logged and ignored; a channel failure is fatal.
func msgLoop(conn *ctlmsg.Conn, tries, extraThreads int, log *logrus.Entry) error {
	for {
		msg, err := conn.Recv()
		if err != nil {
			return err
		}
		switch msg {
		case ctlmsg.Done:
			return nil
		case ctlmsg.Ping:
			if err := conn.Send(ctlmsg.Pong); err != nil {
				return err
			}
		case ctlmsg.Crash:
			for i := 0; i < tries; i++ {
				if err := crashAndVerify(log); err != nil {
					log.Errorf("fault cycle %d: %v", i+1, err)
					os.Exit(ExitVerifyFailure)
				}
			}
			if err := conn.Send(ctlmsg.RecoveredFromCrash); err != nil {
				return err
			}
		case ctlmsg.StartExtraThreads:
			startExtraThreads(extraThreads, log)
			if err := conn.Send(ctlmsg.ExtraThreadsStarted); err != nil {
				return err
			}
		default:
			log.Warnf("unknown message received: %v", msg)
		}
	}
}

// startExtraThreads parks n worker goroutines, each pinned to its own
// OS thread. They are never joined; the threads are reclaimed when the
// process exits.
func startExtraThreads(n int, log *logrus.Entry) {
	var up sync.WaitGroup
	up.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			runtime.LockOSThread()
			log.Debugf("extra thread %d started", i)
			up.Done()
			select {}
		}(i)
	}
	// Reply only after every worker owns a thread, so that enumeration
	// on the harness side observes all of them.
	up.Wait()
}
