package run

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/datalad-core/datalad/internal/dsgraph"
	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/transfer"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// OnFailure is the standard continue/stop/ignore policy applied when a
// command exits non-zero.
type OnFailure string

const (
	OnFailureStop     OnFailure = "stop"
	OnFailureContinue OnFailure = "continue"
	OnFailureIgnore   OnFailure = "ignore"
)

// Options configures one run() invocation.
type Options struct {
	Command      string // shell-mode string; mutually exclusive with Argv
	Argv         []string
	Message      string
	Inputs       []string // glob patterns
	Outputs      []string
	Explicit     bool
	AssumeReady  bool
	OnFailure    OnFailure
	Timeout      time.Duration
	ExtraPlaceholders map[string]string
	Engine       *transfer.Engine
}

// Outcome is run()'s result.
type Outcome struct {
	ExitCode     int
	Commit       string
	UnexpectedMods []string // modifications outside declared output globs
	Status       transfer.TaskStatus
	Err          error
}

// Recorder executes Run against one dataset.
type Recorder struct {
	Dataset *dsgraph.Dataset
}

// Run implements the full pre-command / execution / post-command contract:
// check cleanliness, fetch declared inputs, execute, then commit a Run
// Record of the outcome.
func (rc *Recorder) Run(ctx context.Context, opts Options) (Outcome, error) {
	if opts.OnFailure == "" {
		opts.OnFailure = OnFailureStop
	}

	clean, err := rc.isClean(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !clean && !opts.Explicit {
		return Outcome{Status: transfer.StatusImpossible}, errs.New(errs.Conflict, "dataset has uncommitted modifications; pass Explicit to run anyway")
	}

	inputPaths, err := expandGlobs(rc.Dataset.Root, opts.Inputs, opts.OnFailure)
	if err != nil {
		return Outcome{}, err
	}

	if !opts.AssumeReady && opts.Engine != nil && len(inputPaths) > 0 {
		if err := rc.fetchInputs(ctx, opts.Engine, inputPaths); err != nil {
			return Outcome{}, err
		}
	}

	tmpDir, cleanupTmp, err := NewTmpDir("")
	if err != nil {
		return Outcome{}, err
	}
	defer cleanupTmp()

	placeholders := Placeholders{
		Inputs:  strings.Join(inputPaths, " "),
		Outputs: strings.Join(opts.Outputs, " "),
		PWD:     rc.Dataset.Root,
		TmpDir:  tmpDir,
		Extra:   opts.ExtraPlaceholders,
	}

	inv := Invocation{Argv: opts.Argv}
	cmdString := opts.Command
	if opts.Argv == nil {
		cmdString = placeholders.Expand(opts.Command)
		inv = Invocation{Shell: cmdString}
	} else {
		expanded := make([]string, len(opts.Argv))
		for i, a := range opts.Argv {
			expanded[i] = placeholders.Expand(a)
		}
		inv = Invocation{Argv: expanded}
		cmdString = strings.Join(opts.Argv, " ")
	}

	runner := &Runner{Cwd: rc.Dataset.Root, Timeout: opts.Timeout}
	exitCode, runErr := runner.Run(ctx, inv, nil)

	status := transfer.StatusOK
	if exitCode != 0 {
		status = transfer.StatusError
	}

	outputPaths, err := expandGlobs(rc.Dataset.Root, opts.Outputs, opts.OnFailure)
	if err != nil {
		return Outcome{}, err
	}

	statusRecords, err := rc.Dataset.Status(ctx, nil, false, dsgraph.EvalNo)
	if err != nil {
		return Outcome{}, err
	}
	unexpected := unexpectedMods(statusRecords, outputPaths)

	if status == transfer.StatusError && opts.OnFailure == OnFailureStop {
		return Outcome{ExitCode: exitCode, Status: status, UnexpectedMods: unexpected, Err: runErr}, nil
	}

	subject := opts.Message
	if subject == "" {
		subject = "[DATALAD RUNCMD] " + cmdString
	}
	rec := Record{Command: cmdString, Exit: exitCode, Inputs: opts.Inputs, Outputs: opts.Outputs, PWD: rc.Dataset.Root}
	msg, err := Encode(subject, rec)
	if err != nil {
		return Outcome{}, err
	}

	var toAdd []string
	for _, s := range statusRecords {
		toAdd = append(toAdd, s.Path)
	}
	if len(toAdd) > 0 {
		if err := rc.Dataset.Bridge.CallVcsCommit(ctx, []string{"add", "--"}, toAdd, vcsbridge.RunOpts{}); err != nil {
			return Outcome{}, err
		}
	}

	commit, commitErr := rc.commit(ctx, msg)
	if commitErr != nil {
		return Outcome{}, commitErr
	}

	return Outcome{ExitCode: exitCode, Commit: commit, Status: status, UnexpectedMods: unexpected, Err: runErr}, nil
}

func (rc *Recorder) isClean(ctx context.Context) (bool, error) {
	records, err := rc.Dataset.Status(ctx, nil, false, dsgraph.EvalNo)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.State != dsgraph.FileClean {
			return false, nil
		}
	}
	return true, nil
}

// fetchInputs pulls the declared input paths through the annex directly;
// the TransferEngine reference in Options is accepted for a future
// candidate-ordered path but is not required for this straightforward
// "get what the globs named" case.
func (rc *Recorder) fetchInputs(ctx context.Context, engine *transfer.Engine, paths []string) error {
	_, _, exit, err := rc.Dataset.Bridge.CallVcs(ctx, append([]string{"annex", "get", "--"}, paths...), vcsbridge.RunOpts{})
	if err != nil {
		return errs.Wrap(errs.Transfer, err, "fetch run inputs")
	}
	if exit != 0 {
		return errs.New(errs.Transfer, "git annex get of run inputs failed")
	}
	return nil
}

// expandGlobs expands each pattern against root, collecting an error result
// (or skipping, under --on-failure=continue) for non-matching globs.
func expandGlobs(root string, patterns []string, onFailure OnFailure) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pat))
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, err, "invalid glob %q", pat)
		}
		if len(matches) == 0 {
			if onFailure == OnFailureContinue {
				continue
			}
			return nil, errs.New(errs.InvalidArgument, "glob %q matched no files", pat)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(root, m)
			if err != nil {
				rel = m
			}
			out = append(out, rel)
		}
	}
	return out, nil
}

// unexpectedMods reports modified/untracked paths not covered by any
// declared output glob.
func unexpectedMods(records []dsgraph.StatusRecord, declaredOutputs []string) []string {
	declared := make(map[string]bool, len(declaredOutputs))
	for _, o := range declaredOutputs {
		declared[o] = true
	}
	var out []string
	for _, r := range records {
		if r.State == dsgraph.FileClean {
			continue
		}
		if !declared[r.Path] {
			out = append(out, r.Path)
		}
	}
	return out
}

func (rc *Recorder) commit(ctx context.Context, message string) (string, error) {
	_, stderr, exit, err := rc.Dataset.Bridge.CallVcs(ctx, []string{"commit", "-m", message}, vcsbridge.RunOpts{})
	if err != nil {
		return "", errs.Wrap(errs.MissingExternalDependency, err, "run commit")
	}
	if exit != 0 {
		if strings.Contains(stderr, "nothing to commit") {
			return rc.Dataset.Bridge.HeadCommit(ctx)
		}
		return "", errs.New(errs.Conflict, "commit failed: %s", stderr)
	}
	return rc.Dataset.Bridge.HeadCommit(ctx)
}
