package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if !reflect.DeepEqual(c, Default()) {
		t.Errorf("Load(\"\") = %+v, want defaults %+v", c, Default())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, "crash-tries: 7\nwatchdog-tick: 250ms\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CrashTries != 7 {
		t.Errorf("CrashTries = %d, want 7", c.CrashTries)
	}
	if c.WatchdogTick != 250*time.Millisecond {
		t.Errorf("WatchdogTick = %v, want 250ms", c.WatchdogTick)
	}
	def := Default()
	if c.ExtraThreads != def.ExtraThreads || c.WatchdogTicks != def.WatchdogTicks {
		t.Errorf("unset fields not defaulted: %+v", c)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []string{
		"crash-tries: 0\n",
		"crash-tries: -1\n",
		"extra-threads: 0\n",
		"watchdog-ticks: -5\n",
		"watchdog-tick: 0s\n",
	}
	for _, body := range tests {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("Load accepted %q", body)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestParsedInferiorArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
		err  bool
	}{
		{in: "", want: nil},
		{in: "-v --log-output tracer", want: []string{"-v", "--log-output", "tracer"}},
		{in: `--name "with space"`, want: []string{"--name", "with space"}},
		{in: "a | b", err: true},
		{in: "a `b`", err: true},
	}
	for _, tt := range tests {
		c := Default()
		c.InferiorArgs = tt.in
		got, err := c.ParsedInferiorArgs()
		if tt.err {
			if err == nil {
				t.Errorf("ParsedInferiorArgs(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsedInferiorArgs(%q): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParsedInferiorArgs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
