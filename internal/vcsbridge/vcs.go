// Capability probes for the external processes datalad-core drives, the
// VCS proper and its annex companion, plus detection of the annex-branch
// ref (whose presence marks a dataset's kind as annexed) and of adjusted
// branches.
package vcsbridge

import (
	"context"
	"os/exec"
	"strings"

	"github.com/datalad-core/datalad/internal/errs"
)

// Capability describes one external binary's presence and version.
type Capability struct {
	Name      string
	Path      string
	Version   string
	Available bool
}

// Probe checks that exe is on PATH and runs `exe --version` to confirm it
// actually works rather than just existing.
func Probe(exe string) Capability {
	path, err := exec.LookPath(exe)
	if err != nil {
		return Capability{Name: exe, Available: false}
	}
	out, err := exec.Command(exe, "--version").Output()
	version := ""
	if err == nil {
		version = strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	}
	return Capability{Name: exe, Path: path, Version: version, Available: true}
}

// RequireCapabilities probes every exe and raises MissingExternalDependency
// for the first one absent or non-functional.
func RequireCapabilities(exes ...string) error {
	for _, exe := range exes {
		cap := Probe(exe)
		if !cap.Available {
			return errs.New(errs.MissingExternalDependency, "required external dependency %q not found on PATH", exe)
		}
	}
	return nil
}

// annexBranchRef is the ref whose presence marks a dataset "annexed" rather
// than "plain".
const annexBranchRef = "refs/heads/git-annex"

// IsAnnexed detects Kind by probing for the annex branch ref.
func (b *Bridge) IsAnnexed(ctx context.Context) (bool, error) {
	_, _, exit, err := b.CallVcs(ctx, []string{"show-ref", "--verify", "--quiet", annexBranchRef}, RunOpts{})
	if err != nil && exit != 1 {
		return false, err
	}
	return exit == 0, nil
}

// adjustedBranchPrefix is how the VCS marks a working-tree-side rewrite of
// the true branch.
const adjustedBranchPrefix = "refs/heads/adjusted/"

// IsAdjusted reports whether the current branch is an adjusted branch, and
// if so returns the name of the true (unadjusted) branch it shadows.
func (b *Bridge) IsAdjusted(ctx context.Context) (adjusted bool, trueBranch string, err error) {
	stdout, _, _, err := b.CallVcs(ctx, []string{"symbolic-ref", "--short", "HEAD"}, RunOpts{})
	if err != nil {
		return false, "", err
	}
	branch := strings.TrimSpace(stdout)
	const prefix = "adjusted/"
	if !strings.HasPrefix(branch, prefix) {
		return false, "", nil
	}
	rest := strings.TrimPrefix(branch, prefix)
	// adjusted branches carry a suffix identifying the adjustment kind,
	// e.g. "adjusted/master(unlocked)"; strip the parenthesized suffix to
	// recover the true branch name.
	if i := strings.IndexByte(rest, '('); i >= 0 {
		rest = rest[:i]
	}
	return true, rest, nil
}

// HeadCommit returns the current commit id (160- or 256-bit content hash),
// as hex.
func (b *Bridge) HeadCommit(ctx context.Context) (string, error) {
	stdout, _, _, err := b.CallVcs(ctx, []string{"rev-parse", "HEAD"}, RunOpts{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

// ReadBranchFile reads `ref:path` via `git show`, used by Dataset to read
// the subdataset registry file out of a revision without a working tree.
func (b *Bridge) ReadBranchFile(ctx context.Context, ref, path string) ([]byte, error) {
	stdout, _, _, err := b.CallVcs(ctx, []string{"show", ref + ":" + path}, RunOpts{})
	if err != nil {
		return nil, err
	}
	return []byte(stdout), nil
}
