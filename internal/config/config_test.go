package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// =============================================================================
// DefaultConfig / Validate
// =============================================================================

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("DefaultConfig() should validate, got %v", err)
	}
	if cfg.ReadPollInterval != 100*time.Millisecond {
		t.Errorf("ReadPollInterval = %v, want 100ms", cfg.ReadPollInterval)
	}
	if cfg.WaitSlice != 10*time.Millisecond {
		t.Errorf("WaitSlice = %v, want 10ms", cfg.WaitSlice)
	}
	if cfg.KillGrace != 3*time.Second {
		t.Errorf("KillGrace = %v, want 3s", cfg.KillGrace)
	}
}

func TestValidate_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero poll", func(c *Config) { c.ReadPollInterval = 0 }, "read_poll_interval"},
		{"negative wait slice", func(c *Config) { c.WaitSlice = -1 }, "wait_slice"},
		{"negative grace", func(c *Config) { c.KillGrace = -time.Second }, "kill_grace"},
		{"zero read size", func(c *Config) { c.PTYReadSize = 0 }, "pty_read_size"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q should mention %q", err, tc.field)
			}
		})
	}
}

func TestValidate_ZeroGraceAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KillGrace = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("zero grace should be valid, got %v", err)
	}
}

// =============================================================================
// FromEnv
// =============================================================================

func TestFromLookup(t *testing.T) {
	env := map[string]string{
		EnvLogFormat:    "JSON",
		EnvLogLevel:     "debug",
		EnvKillGrace:    "500ms",
		EnvPollInterval: "20ms",
		EnvPTYReadSize:  "1024",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := fromLookup(lookup)
	if err != nil {
		t.Fatalf("fromLookup: %v", err)
	}

	want := DefaultConfig()
	want.LogFormat = "json"
	want.LogLevel = "debug"
	want.KillGrace = 500 * time.Millisecond
	want.ReadPollInterval = 20 * time.Millisecond
	want.PTYReadSize = 1024

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestFromLookup_BadDuration(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == EnvReaderJoin {
			return "soon", true
		}
		return "", false
	}
	_, err := fromLookup(lookup)
	if err == nil || !strings.Contains(err.Error(), EnvReaderJoin) {
		t.Errorf("expected %s parse error, got %v", EnvReaderJoin, err)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{EnvLogFormat, EnvLogLevel, EnvKillGrace, EnvReaderJoin, EnvPollInterval, EnvPTYReadSize} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// Command resolution
// =============================================================================

func TestResolve(t *testing.T) {
	testCases := []struct {
		name      string
		cmd       Command
		mode      ShellMode
		wantShell bool
		wantArgv  []string
	}{
		{"script auto", Command{Script: "echo hi"}, ShellAuto, true, []string{"/bin/sh", "-c", "echo hi"}},
		{"args auto", Command{Args: []string{"echo", "hi"}}, ShellAuto, false, []string{"echo", "hi"}},
		{"args with operator", Command{Args: []string{"echo", "a", "&&", "echo", "b"}}, ShellAuto, true, []string{"/bin/sh", "-c", "echo a && echo b"}},
		{"args forced shell", Command{Args: []string{"echo", "hello world"}}, ShellAlways, true, []string{"/bin/sh", "-c", "echo 'hello world'"}},
		{"args never", Command{Args: []string{"ls", "-l"}}, ShellNever, false, []string{"ls", "-l"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Resolve(tc.cmd, tc.mode)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if r.Shell != tc.wantShell {
				t.Errorf("Shell = %v, want %v", r.Shell, tc.wantShell)
			}
			if diff := cmp.Diff(tc.wantArgv, r.Argv); diff != "" {
				t.Errorf("argv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	testCases := []struct {
		name string
		cmd  Command
		mode ShellMode
		want string
	}{
		{"empty", Command{}, ShellAuto, "must not be empty"},
		{"both", Command{Script: "x", Args: []string{"y"}}, ShellAuto, "not both"},
		{"script without shell", Command{Script: "echo hi"}, ShellNever, "require the shell"},
		{"operator without shell", Command{Args: []string{"a", "|", "b"}}, ShellNever, "shell operators"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.cmd, tc.mode)
			var cerr *CommandError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *CommandError, got %v", err)
			}
			if !strings.Contains(cerr.Message, tc.want) {
				t.Errorf("message %q should contain %q", cerr.Message, tc.want)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	testCases := []struct {
		args []string
		want string
	}{
		{[]string{"echo", "hi"}, "echo hi"},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
		{[]string{"printf", ""}, "printf ''"},
		{[]string{"a", "2>", "b"}, "a 2> b"},
		{[]string{"echo", "$HOME"}, "echo '$HOME'"},
	}

	for _, tc := range testCases {
		if got := JoinArgs(tc.args); got != tc.want {
			t.Errorf("JoinArgs(%q) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

func TestShellMode_String(t *testing.T) {
	testCases := []struct {
		mode ShellMode
		want string
	}{
		{ShellAuto, "auto"},
		{ShellAlways, "always"},
		{ShellNever, "never"},
		{ShellMode(99), "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.mode.String(); got != tc.want {
			t.Errorf("ShellMode(%d).String() = %q, want %q", tc.mode, got, tc.want)
		}
	}
}
