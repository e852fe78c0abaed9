package run

import (
	"context"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/datalad-core/datalad/internal/dsgraph"
	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/transfer"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// RerunOutcome is one revision's replay result.
type RerunOutcome struct {
	Revision string
	Record   Record
	Outcome  Outcome
}

// Rerunner replays previously recorded run commits.
type Rerunner struct {
	Dataset *dsgraph.Dataset
	Engine  *transfer.Engine
}

// Rerun replays each of revisions in order: reconstruct the recorded
// command, execute it, and compare results. Adjusted-branch datasets are
// rejected outright, and a merge commit in the range yields an error result
// rather than an attempted conflict resolution.
func (rr *Rerunner) Rerun(ctx context.Context, revisions []string, onFailure OnFailure) ([]RerunOutcome, error) {
	if rr.Dataset.Mode() == dsgraph.ModeAdjusted {
		return nil, errs.New(errs.Conflict, "rerun is not supported on an adjusted branch; run `datalad update --adjust` to return to normal mode first")
	}

	var results []RerunOutcome
	for _, rev := range revisions {
		if isMergeCommit, err := rr.isMerge(ctx, rev); err != nil {
			return results, err
		} else if isMergeCommit {
			results = append(results, RerunOutcome{
				Revision: rev,
				Outcome:  Outcome{Status: transfer.StatusError, Err: errs.New(errs.Conflict, "rerun of merge commit %s is not supported; resolve manually", rev)},
			})
			if onFailure == OnFailureStop {
				return results, nil
			}
			continue
		}

		msg, err := rr.commitMessage(ctx, rev)
		if err != nil {
			return results, err
		}
		rec, _, ok, err := Decode(msg)
		if err != nil {
			return results, err
		}
		if !ok {
			results = append(results, RerunOutcome{
				Revision: rev,
				Outcome:  Outcome{Status: transfer.StatusImpossible, Err: errs.New(errs.InvalidArgument, "%s is not a run commit", rev)},
			})
			if onFailure == OnFailureStop {
				return results, nil
			}
			continue
		}

		recorder := &Recorder{Dataset: rr.Dataset}
		outcome, err := recorder.Run(ctx, Options{
			Command:   rec.Command,
			Inputs:    rec.Inputs,
			Outputs:   rec.Outputs,
			OnFailure: onFailure,
			Engine:    rr.Engine,
			Message:   "[DATALAD RUNCMD: rerun of " + rev + "]",
		})
		if err != nil {
			return results, err
		}
		results = append(results, RerunOutcome{Revision: rev, Record: rec, Outcome: outcome})
		if outcome.Status == transfer.StatusError && onFailure == OnFailureStop {
			return results, nil
		}
	}
	return results, nil
}

// Script returns a shell script of the recorded command lines for revisions
// without executing them: for each record, a `cd` into its working
// directory (quoted via github.com/kballard/go-shellquote) followed by the
// recorded command verbatim.
func (rr *Rerunner) Script(ctx context.Context, revisions []string) (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n")
	for _, rev := range revisions {
		msg, err := rr.commitMessage(ctx, rev)
		if err != nil {
			return "", err
		}
		rec, _, ok, err := Decode(msg)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		b.WriteString("# from " + rev + "\n")
		b.WriteString("cd " + shellquote.Join(rec.PWD) + "\n")
		b.WriteString(rec.Command + "\n")
	}
	return b.String(), nil
}

func (rr *Rerunner) commitMessage(ctx context.Context, rev string) (string, error) {
	out, _, exit, err := rr.Dataset.Bridge.CallVcs(ctx, []string{"log", "-1", "--format=%B", rev}, vcsbridge.RunOpts{})
	if err != nil {
		return "", errs.Wrap(errs.MissingExternalDependency, err, "read commit message for %s", rev)
	}
	if exit != 0 {
		return "", errs.New(errs.InvalidArgument, "revision %s not found", rev)
	}
	return out, nil
}

func (rr *Rerunner) isMerge(ctx context.Context, rev string) (bool, error) {
	out, _, exit, err := rr.Dataset.Bridge.CallVcs(ctx, []string{"rev-list", "--parents", "-1", rev}, vcsbridge.RunOpts{})
	if err != nil {
		return false, errs.Wrap(errs.MissingExternalDependency, err, "inspect parents of %s", rev)
	}
	if exit != 0 {
		return false, errs.New(errs.InvalidArgument, "revision %s not found", rev)
	}
	fields := strings.Fields(out)
	return len(fields) > 2, nil
}
