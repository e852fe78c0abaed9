package run

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func TestPlaceholdersExpandBuiltins(t *testing.T) {
	p := Placeholders{Inputs: "a.txt b.txt", Outputs: "out.txt", PWD: "/ds", TmpDir: "/tmp/x"}
	got := p.Expand("process {inputs} > {outputs} (cwd {pwd}, tmp {tmpdir})")
	want := "process a.txt b.txt > out.txt (cwd /ds, tmp /tmp/x)"
	assertEqual(t, got, want)
}

func TestPlaceholdersExpandExtraAndLeavesUnknown(t *testing.T) {
	p := Placeholders{Extra: map[string]string{"name": "alice"}}
	got := p.Expand("hello {name}, unknown {nonexistent}")
	assertEqual(t, got, "hello alice, unknown {nonexistent}")
}

func TestArgvOrShellWithArgv(t *testing.T) {
	inv := Invocation{Argv: []string{"echo", "a", "b"}}
	exe, args, err := inv.argvOrShell()
	if err != nil {
		t.Fatalf("argvOrShell: %v", err)
	}
	assertEqual(t, exe, "echo")
	assertEqual(t, len(args), 2)
	assertEqual(t, args[0], "a")
	assertEqual(t, args[1], "b")
}

func TestArgvOrShellEmptyArgvErrors(t *testing.T) {
	inv := Invocation{Argv: []string{}}
	if _, _, err := inv.argvOrShell(); err == nil {
		t.Fatalf("expected an error for an empty argv invocation")
	}
}

func TestArgvOrShellShellMode(t *testing.T) {
	inv := Invocation{Shell: "echo hi"}
	exe, args, err := inv.argvOrShell()
	if err != nil {
		t.Fatalf("argvOrShell: %v", err)
	}
	if exe != "/bin/sh" && exe != "cmd" {
		t.Fatalf("expected a platform shell, got %q", exe)
	}
	if len(args) == 0 {
		t.Fatalf("expected shell args to carry the command string")
	}
}

func TestRunnerRunCapturesOutputAndExitCode(t *testing.T) {
	r := &Runner{Cwd: t.TempDir()}
	var lines []OutputChunk
	exitCode, err := r.Run(context.Background(), Invocation{Argv: []string{"sh", "-c", "echo out-line; echo err-line 1>&2"}}, func(c OutputChunk) {
		lines = append(lines, c)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertEqual(t, exitCode, 0)

	var sawStdout, sawStderr bool
	for _, l := range lines {
		if !l.Stderr && l.Line == "out-line" {
			sawStdout = true
		}
		if l.Stderr && l.Line == "err-line" {
			sawStderr = true
		}
	}
	if !sawStdout || !sawStderr {
		t.Fatalf("expected both stdout and stderr lines captured, got %+v", lines)
	}
}

func TestRunnerRunReportsNonZeroExit(t *testing.T) {
	r := &Runner{Cwd: t.TempDir()}
	exitCode, err := r.Run(context.Background(), Invocation{Argv: []string{"sh", "-c", "exit 5"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertEqual(t, exitCode, 5)
}

func TestRunnerRunTimesOut(t *testing.T) {
	r := &Runner{Cwd: t.TempDir(), Timeout: 50 * time.Millisecond}
	_, err := r.Run(context.Background(), Invocation{Argv: []string{"sh", "-c", "sleep 5"}}, nil)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
}

func TestNewTmpDirCreatesAndCleansUp(t *testing.T) {
	base := t.TempDir()
	dir, cleanup, err := NewTmpDir(base)
	if err != nil {
		t.Fatalf("NewTmpDir: %v", err)
	}
	if filepath.Dir(dir) != base {
		t.Fatalf("expected tmpdir to be created under base, got %q", dir)
	}
	cleanup()
}

func TestAbsPathLeavesAbsoluteAlone(t *testing.T) {
	abs := t.TempDir()
	assertEqual(t, absPath(abs), abs)
}

func TestAbsPathResolvesRelative(t *testing.T) {
	got := absPath("relative/path")
	if !filepath.IsAbs(got) {
		t.Fatalf("expected absPath to resolve a relative path, got %q", got)
	}
}
