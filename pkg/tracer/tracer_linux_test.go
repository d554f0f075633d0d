package tracer

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"syscall"
	"testing"

	"github.com/creack/pty"
)

func TestAsyncPreemptOffEnv(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{
			in:   []string{"PATH=/bin"},
			want: []string{"PATH=/bin", "GODEBUG=asyncpreemptoff=1"},
		},
		{
			in:   []string{"PATH=/bin", "GODEBUG=gctrace=1"},
			want: []string{"PATH=/bin", "GODEBUG=gctrace=1,asyncpreemptoff=1"},
		},
		{
			in:   []string{"GODEBUG=", "PATH=/bin"},
			want: []string{"GODEBUG=,asyncpreemptoff=1", "PATH=/bin"},
		},
	}
	for _, tt := range tests {
		got := asyncPreemptOffEnv(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("asyncPreemptOffEnv(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAsyncPreemptOffEnvDoesNotMutate(t *testing.T) {
	in := []string{"GODEBUG=gctrace=1"}
	asyncPreemptOffEnv(in)
	if in[0] != "GODEBUG=gctrace=1" {
		t.Errorf("input environment mutated to %q", in[0])
	}
}

func TestAttachProcessToTTY(t *testing.T) {
	ptm, pts, err := pty.Open()
	if err != nil {
		t.Fatalf("open pty: %v", err)
	}
	defer ptm.Close()
	defer pts.Close()

	cmd := exec.Command("/bin/true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true, Setpgid: true}
	if err := attachProcessToTTY(cmd, pts.Name()); err != nil {
		t.Fatalf("attachProcessToTTY(%s): %v", pts.Name(), err)
	}
	if cmd.Stdin == nil || cmd.Stdout == nil || cmd.Stderr == nil {
		t.Error("standard streams not redirected to the tty")
	}
	if cmd.SysProcAttr.Setpgid {
		t.Error("Setpgid still set after tty attach")
	}
	if !cmd.SysProcAttr.Setsid || !cmd.SysProcAttr.Setctty {
		t.Error("Setsid/Setctty not set for controlling tty")
	}
	if f, ok := cmd.Stdin.(*os.File); ok {
		f.Close()
	}
}

func TestAttachProcessToTTYNotATerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-tty")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("/bin/true")
	cmd.SysProcAttr = &syscall.SysProcAttr{}
	if err := attachProcessToTTY(cmd, path); err == nil {
		t.Fatal("attachProcessToTTY accepted a regular file")
	}
}
