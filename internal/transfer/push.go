// push() walks a dataset hierarchy bottom-up, publishing each dataset's
// tracked-tree state to a named sibling before any dataset that depends on
// it (publication dependencies), then optionally its annexed content.
package transfer

import (
	"context"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/datalad-core/datalad/internal/dsgraph"
	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// DataPolicy is the --data argument to push: "auto" pushes
// locally present keys the target does not have (the target's annex.wanted
// preferred-content expression is not consulted), "all"
// pushes every locally present key, "nothing" skips content entirely.
type DataPolicy string

const (
	DataAuto    DataPolicy = "auto"
	DataAll     DataPolicy = "all"
	DataNothing DataPolicy = "nothing"
)

// PushResult is one dataset's outcome from a push walk.
type PushResult struct {
	Path       string
	Status     TaskStatus
	Published  bool // tracked-tree state was pushed
	DataPushed int  // count of keys pushed
	Err        error
}

// Pusher drives the bottom-up publish walk for one invocation.
type Pusher struct {
	Engine *Engine
	Log    *logrus.Entry
}

// Push publishes ds (and, if recursive, its subdatasets) to remote,
// bottom-up: every subdataset the target depends on (its own
// publish-depends chain) is pushed before ds itself. A sibling may declare
// other siblings that must receive a compatible push first.
func (p *Pusher) Push(ctx context.Context, ds *dsgraph.Dataset, remote string, recursive bool, data DataPolicy) ([]PushResult, error) {
	var results []PushResult

	if recursive {
		subs, err := ds.Subdatasets(ctx, false, "", 1)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			if sub.State == dsgraph.StateAbsent {
				continue
			}
			child, err := dsgraph.Handle(path.Join(ds.Root, sub.Path), p.Log)
			if err != nil {
				return nil, err
			}
			childResults, err := p.Push(ctx, child, remote, recursive, data)
			if err != nil {
				return nil, err
			}
			results = append(results, childResults...)
		}
	}

	res := p.pushOne(ctx, ds, remote, data)
	return append(results, res), nil
}

// pushOne publishes a single dataset's content and tracked-tree state,
// resolving publication dependencies declared on the sibling record before
// touching remote itself: each dependency target (data, then refs) is
// brought fully up to date first, per the "transfer data before pushing
// refs" ordering that also governs remote's own push below.
func (p *Pusher) pushOne(ctx context.Context, ds *dsgraph.Dataset, remote string, data DataPolicy) PushResult {
	r := PushResult{Path: ds.Root}

	deps, err := p.publishDependsOf(ctx, ds, remote)
	if err != nil {
		r.Status, r.Err = StatusError, err
		return r
	}
	for _, dep := range deps {
		if _, err := p.pushDataAndRefs(ctx, ds, dep, data); err != nil {
			r.Status = StatusError
			r.Err = errs.Wrap(errs.Transfer, err, "publication dependency %s failed for %s", dep, ds.Root)
			return r
		}
	}

	dataPushed, err := p.pushDataAndRefs(ctx, ds, remote, data)
	if err != nil {
		r.Status, r.Err = StatusError, err
		return r
	}
	r.Published = true
	r.DataPushed = dataPushed
	r.Status = StatusOK
	return r
}

// pushDataAndRefs transfers ds's annexed content to target before pushing
// target's refs, so a concurrent clone of target never observes a ref
// pointing at content that hasn't arrived yet.
func (p *Pusher) pushDataAndRefs(ctx context.Context, ds *dsgraph.Dataset, target string, data DataPolicy) (int, error) {
	pushed := 0
	if data != DataNothing {
		keys, err := p.keysToPush(ctx, ds, target, data)
		if err != nil {
			return 0, err
		}
		clone := &CloneSource{Bridge: ds.Bridge}
		for _, key := range keys {
			if ctx.Err() != nil {
				return pushed, errs.Wrap(errs.Cancelled, ctx.Err(), "push of %s cancelled", ds.Root)
			}
			present, err := clone.Present(ctx, target, key)
			if err != nil {
				return pushed, err
			}
			if present {
				continue
			}
			if err := clone.Put(ctx, target, key, func(Progress) {}); err != nil {
				return pushed, err
			}
			pushed++
		}
	}

	if _, stderr, exit, err := ds.Bridge.CallVcs(ctx, []string{"push", target}, vcsbridge.RunOpts{}); err != nil {
		return pushed, errs.Wrap(errs.MissingExternalDependency, err, "run git push %s", target)
	} else if exit != 0 {
		return pushed, errs.New(errs.Transfer, "git push %s failed: %s", target, stderr)
	}
	return pushed, nil
}

// publishDependsOf reads every `remote.<remote>.datalad-publish-depends`
// value via `git config --get-all` on the dataset's bridge directly, not
// through config.Store.
func (p *Pusher) publishDependsOf(ctx context.Context, ds *dsgraph.Dataset, remote string) ([]string, error) {
	out, _, exit, err := ds.Bridge.CallVcs(ctx, []string{"config", "--get-all", "remote." + remote + ".datalad-publish-depends"}, vcsbridge.RunOpts{})
	if exit == 1 {
		// No publish-depends configured for remote: git config exits 1,
		// which is the expected "not found" outcome, not a failure.
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.MissingExternalDependency, err, "read publish-depends for %s", remote)
	}
	var deps []string
	for _, line := range splitLines(out) {
		if line != "" {
			deps = append(deps, line)
		}
	}
	return deps, nil
}

// keysToPush resolves the content set to push under data's policy. "auto"
// runs `git annex find --in here --and --not --in remote`: locally present
// keys the remote lacks; the remote's `annex.wanted` expression is not
// consulted. "all" pushes every locally present key.
func (p *Pusher) keysToPush(ctx context.Context, ds *dsgraph.Dataset, remote string, data DataPolicy) ([]string, error) {
	args := []string{"annex", "find", "--in", "here"}
	if data == DataAuto {
		args = append(args, "--and", "--not", "--in", remote)
	}
	var keys []string
	out, _, exit, err := ds.Bridge.CallVcs(ctx, args, vcsbridge.RunOpts{})
	if exit != 0 {
		// No matching keys: `git annex find` prints nothing and exits
		// non-zero under --not --in, which is a normal empty result here.
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.MissingExternalDependency, err, "run git-annex find")
	}
	for _, line := range splitLines(out) {
		if line != "" {
			keys = append(keys, line)
		}
	}
	return keys, nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
