package run

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/datalad-core/datalad/internal/errs"
)

// OutputChunk is one line of captured stdout or stderr, yielded as the
// command runs rather than buffered to completion.
type OutputChunk struct {
	Stderr bool
	Line   string
}

// Placeholders is the closed set of built-in substitutions plus any
// user-configured ones, expanded into a command string before tokenizing.
type Placeholders struct {
	Inputs  string
	Outputs string
	PWD     string
	TmpDir  string
	Extra   map[string]string
}

// Expand substitutes every {name} placeholder in cmd. Unknown placeholders
// are left untouched rather than erroring, consistent with the lenient
// template rendering in dsgraph/procedure.go.
func (p Placeholders) Expand(cmd string) string {
	r := strings.NewReplacer(
		"{inputs}", p.Inputs,
		"{outputs}", p.Outputs,
		"{pwd}", p.PWD,
		"{tmpdir}", p.TmpDir,
	)
	out := r.Replace(cmd)
	for k, v := range p.Extra {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Runner executes one command, threaded rather than built on goroutine
// coroutine-style generators, "to avoid interfering with callers' own event
// loops".
type Runner struct {
	Cwd     string
	Env     []string
	Timeout time.Duration // 0 means no timeout
}

// Invocation is a runnable command: either an argv list (direct process,
// no shell) or a single shell-mode string.
type Invocation struct {
	Argv  []string // non-nil: direct process
	Shell string   // used when Argv is nil: platform shell invocation
}

// argvOrShell resolves an Invocation into the executable and its arguments:
// the argv list as given, or the platform shell (`/bin/sh -c`, `cmd /C` on
// Windows) for a shell-mode string.
func (inv Invocation) argvOrShell() (exe string, args []string, err error) {
	if inv.Argv != nil {
		if len(inv.Argv) == 0 {
			return "", nil, errs.New(errs.InvalidArgument, "empty argv invocation")
		}
		return inv.Argv[0], inv.Argv[1:], nil
	}
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", inv.Shell}, nil
	}
	return "/bin/sh", []string{"-c", inv.Shell}, nil
}

// Run executes inv, invoking onChunk for each captured output line as it
// arrives, and returns the process exit code. A nil onChunk discards
// output. Timeout, if set, kills the process and returns a Cancelled
// error whose cause is context.DeadlineExceeded.
func (r *Runner) Run(ctx context.Context, inv Invocation, onChunk func(OutputChunk)) (exitCode int, err error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	exe, args, err := inv.argvOrShell()
	if err != nil {
		return -1, err
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = r.Cwd
	cmd.Env = append(append([]string{}, os.Environ()...), r.Env...)
	cmd.Env = append(cmd.Env, "PWD="+r.Cwd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, errs.Wrap(errs.Internal, err, "open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, errs.Wrap(errs.Internal, err, "open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return -1, errs.Wrap(errs.MissingExternalDependency, err, "start %s", exe)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, false, onChunk)
	go streamLines(&wg, stderr, true, onChunk)
	wg.Wait()

	waitErr := cmd.Wait()
	exitCode = exitCodeOf(waitErr)
	if ctx.Err() == context.DeadlineExceeded {
		return exitCode, errs.Wrap(errs.Cancelled, ctx.Err(), "command %s timed out after %s", exe, r.Timeout)
	}
	return exitCode, nil
}

func streamLines(wg *sync.WaitGroup, r io.Reader, isStderr bool, onChunk func(OutputChunk)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if onChunk != nil {
			onChunk(OutputChunk{Stderr: isStderr, Line: scanner.Text()})
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// NewTmpDir creates the {tmpdir} placeholder target, cleaned up by the
// caller on exit.
func NewTmpDir(base string) (string, func(), error) {
	dir, err := os.MkdirTemp(base, "datalad-run-")
	if err != nil {
		return "", func() {}, errs.Wrap(errs.Permission, err, "create run tmpdir")
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
