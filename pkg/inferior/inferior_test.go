package inferior

import (
	"path/filepath"
	"testing"

	"github.com/go-warden/warden/pkg/ctlmsg"
	"github.com/go-warden/warden/pkg/logflags"
)

// startMsgLoop runs the message loop over an in-process socketpair and
// returns the harness-side end.
func startMsgLoop(t *testing.T, tries, extraThreads int) (*ctlmsg.Conn, chan error) {
	t.Helper()
	parent, child, err := ctlmsg.Pair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	loopErr := make(chan error, 1)
	go func() {
		conn := ctlmsg.New(child)
		defer conn.Close()
		loopErr <- msgLoop(conn, tries, extraThreads, logflags.InferiorLogger())
	}()
	conn := ctlmsg.New(parent)
	t.Cleanup(func() { conn.Close() })
	return conn, loopErr
}

func TestMsgLoopPingDone(t *testing.T) {
	conn, loopErr := startMsgLoop(t, 1, 1)
	if err := conn.Call(ctlmsg.Ping, ctlmsg.Pong); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := conn.Send(ctlmsg.Done); err != nil {
		t.Fatalf("done: %v", err)
	}
	if err := <-loopErr; err != nil {
		t.Fatalf("message loop: %v", err)
	}
}

func TestMsgLoopIgnoresUnknownMessages(t *testing.T) {
	conn, loopErr := startMsgLoop(t, 1, 1)
	for _, m := range []ctlmsg.Msg{ctlmsg.Msg(99), ctlmsg.Msg(7)} {
		if err := conn.Send(m); err != nil {
			t.Fatalf("send %v: %v", m, err)
		}
	}
	// The loop must survive the unknown discriminants and still serve
	// the next request.
	if err := conn.Call(ctlmsg.Ping, ctlmsg.Pong); err != nil {
		t.Fatalf("ping after unknown messages: %v", err)
	}
	if err := conn.Send(ctlmsg.Done); err != nil {
		t.Fatalf("done: %v", err)
	}
	if err := <-loopErr; err != nil {
		t.Fatalf("message loop: %v", err)
	}
}

func TestMsgLoopChannelClosed(t *testing.T) {
	conn, loopErr := startMsgLoop(t, 1, 1)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-loopErr; err == nil {
		t.Fatal("message loop survived channel closure")
	}
}

func TestMsgLoopStartsConfiguredThreads(t *testing.T) {
	const workers = 2
	before := taskCount(t)

	conn, loopErr := startMsgLoop(t, 1, workers)
	if err := conn.Call(ctlmsg.StartExtraThreads, ctlmsg.ExtraThreadsStarted); err != nil {
		t.Fatalf("start extra threads: %v", err)
	}
	if after := taskCount(t); after < before+workers {
		t.Errorf("task count %d after starting %d workers, had %d before", after, workers, before)
	}
	if err := conn.Send(ctlmsg.Done); err != nil {
		t.Fatalf("done: %v", err)
	}
	if err := <-loopErr; err != nil {
		t.Fatalf("message loop: %v", err)
	}
}

func taskCount(t *testing.T) int {
	t.Helper()
	tasks, err := filepath.Glob("/proc/self/task/*")
	if err != nil {
		t.Fatalf("enumerate own tasks: %v", err)
	}
	return len(tasks)
}
