// Package vcsbridge encapsulates every interaction with the external VCS
// process and the external annex process, through a Bridge type with an
// explicit environment-safety contract (PWD sync, LC_MESSAGES=C,
// core.quotepath=false) and a non-zero-exit-is-an-error default.
package vcsbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	shlex "github.com/anmitsu/go-shlex"
	"github.com/sirupsen/logrus"

	"github.com/datalad-core/datalad/internal/errs"
)

// maxLineBuffer bounds per-line buffers for line-oriented protocols at
// 256 KiB, large enough to survive big JSON records while still erroring
// rather than silently truncating on overflow.
const maxLineBuffer = 256 * 1024

// Bridge is one VCS/annex process gateway, scoped to a single repository
// root.
type Bridge struct {
	Root       string
	VcsExe     string // e.g. "git"
	AnnexExe   string // e.g. "git-annex"
	Log        *logrus.Entry
	helperPool *helperPool
}

// New constructs a Bridge rooted at root.
func New(root, vcsExe, annexExe string, log *logrus.Entry) *Bridge {
	if vcsExe == "" {
		vcsExe = "git"
	}
	if annexExe == "" {
		annexExe = "git-annex"
	}
	b := &Bridge{Root: root, VcsExe: vcsExe, AnnexExe: annexExe, Log: log}
	b.helperPool = newHelperPool(b)
	return b
}

// RunOpts configures a single invocation of CallVcs/CallVcsItems.
type RunOpts struct {
	Stdin    io.Reader
	Env      []string
	Cwd      string
	ReadOnly bool
}

// baseEnv returns the subprocess environment with PWD synchronized to cwd
// and LC_MESSAGES pinned to C, so locale-dependent messages never leak into
// parsed output.
func baseEnv(cwd string, extra []string) []string {
	env := os.Environ()
	filtered := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "PWD=") || strings.HasPrefix(kv, "LC_MESSAGES=") {
			continue
		}
		filtered = append(filtered, kv)
	}
	filtered = append(filtered, "PWD="+cwd, "LC_MESSAGES=C")
	return append(filtered, extra...)
}

// gitQuotepathArgs prepends `-c core.quotepath=false` so the VCS never
// C-escapes non-ASCII paths in its output.
func gitQuotepathArgs(args []string) []string {
	return append([]string{"-c", "core.quotepath=false"}, args...)
}

// CallVcs runs the VCS binary with args and returns (stdout, stderr, exit).
// Non-zero exit is an error by default; callers that expect non-zero (e.g.
// `diff --exit-code`) inspect the *exec.ExitError via errors.As on the
// wrapped cause.
func (b *Bridge) CallVcs(ctx context.Context, args []string, opts RunOpts) (stdout, stderr string, exitCode int, err error) {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = b.Root
	}
	fullArgs := gitQuotepathArgs(args)
	cmd := exec.CommandContext(ctx, b.VcsExe, fullArgs...)
	cmd.Dir = cwd
	cmd.Env = baseEnv(cwd, opts.Env)
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if b.Log != nil {
		b.Log.WithField("args", fullArgs).Debug("call_vcs")
	}

	runErr := cmd.Run()
	exitCode = exitCodeOf(runErr)
	stdout, stderr = outBuf.String(), errBuf.String()
	if runErr != nil && exitCode != 0 {
		return stdout, stderr, exitCode, errs.Wrap(errs.External, runErr, "%s %s: exit %d: %s", b.VcsExe, strings.Join(args, " "), exitCode, strings.TrimSpace(stderr))
	}
	return stdout, stderr, exitCode, nil
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

// CallVcsItems runs the VCS binary and yields decoded output lines lazily
// to fn, stopping early if fn returns false. This is the lazy-iteration
// counterpart to CallVcs.
func (b *Bridge) CallVcsItems(ctx context.Context, args []string, opts RunOpts, fn func(line string) bool) error {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = b.Root
	}
	cmd := exec.CommandContext(ctx, b.VcsExe, gitQuotepathArgs(args)...)
	cmd.Dir = cwd
	cmd.Env = baseEnv(cwd, opts.Env)
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(errs.Internal, err, "open stdout pipe for %s", b.VcsExe)
	}
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.MissingExternalDependency, err, "start %s", b.VcsExe)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBuffer)
	for scanner.Scan() {
		if !fn(scanner.Text()) {
			break
		}
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	if scanErr != nil {
		if scanErr == bufio.ErrTooLong {
			return errs.New(errs.Internal, "line exceeded %d byte buffer reading %s output", maxLineBuffer, b.VcsExe)
		}
		return errs.Wrap(errs.Internal, scanErr, "scan %s output", b.VcsExe)
	}
	if waitErr != nil {
		if exitCodeOf(waitErr) != 0 {
			return errs.Wrap(errs.External, waitErr, "%s %s: %s", b.VcsExe, strings.Join(args, " "), strings.TrimSpace(errBuf.String()))
		}
	}
	return nil
}

// AnnexRecord is one parsed line of the annex's one-record-per-line JSON
// output. Success and ErrorMessages are lifted out of the
// free-form payload because every annex JSON command carries them.
type AnnexRecord struct {
	Success       bool
	ErrorMessages []string
	Fields        map[string]interface{}
}

// CallAnnexJSON runs the annex binary with `--json` implied by args and
// yields parsed AnnexRecords lazily.
func (b *Bridge) CallAnnexJSON(ctx context.Context, args []string, opts RunOpts, fn func(AnnexRecord) bool) error {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = b.Root
	}
	cmd := exec.CommandContext(ctx, b.AnnexExe, args...)
	cmd.Dir = cwd
	cmd.Env = baseEnv(cwd, opts.Env)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(errs.Internal, err, "open stdout pipe for %s", b.AnnexExe)
	}
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.MissingExternalDependency, err, "start %s", b.AnnexExe)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBuffer)
	var parseErr error
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var raw map[string]interface{}
		if jerr := json.Unmarshal(line, &raw); jerr != nil {
			parseErr = fmt.Errorf("parse annex json line %q: %w", string(line), jerr)
			break
		}
		rec := AnnexRecord{Fields: raw}
		if s, ok := raw["success"].(bool); ok {
			rec.Success = s
		}
		if msgs, ok := raw["error-messages"].([]interface{}); ok {
			for _, m := range msgs {
				if s, ok := m.(string); ok {
					rec.ErrorMessages = append(rec.ErrorMessages, s)
				}
			}
		}
		if !fn(rec) {
			break
		}
	}
	waitErr := cmd.Wait()
	if parseErr != nil {
		return errs.Wrap(errs.Internal, parseErr, "decoding %s output", b.AnnexExe)
	}
	if waitErr != nil && exitCodeOf(waitErr) != 0 {
		return errs.Wrap(errs.External, waitErr, "%s %s: %s", b.AnnexExe, strings.Join(args, " "), strings.TrimSpace(errBuf.String()))
	}
	return nil
}

// ShellTokenize splits a single shell-mode command string into argv using a
// lenient shlex.
func ShellTokenize(command string) ([]string, error) {
	words, err := shlex.Split(command, true)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "tokenizing command %q", command)
	}
	return words, nil
}
