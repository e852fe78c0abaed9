// Local and sibling-VCS-remote transfer source: a candidate backed directly by another annex repository
// (a sibling clone, not a special remote), reached through the usual
// `git annex copy --from/--to` path rather than a bespoke protocol.
package transfer

import (
	"context"

	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// CloneSource fetches or pushes a key by delegating to the annex's own
// copy machinery against a named sibling remote, rather than reading
// bytes directly — the sibling may be local, SSH, or any annex-aware
// transport the installed git-annex itself understands.
type CloneSource struct {
	Bridge *vcsbridge.Bridge
}

// Get retrieves key from remote into the local annex.
func (s *CloneSource) Get(ctx context.Context, remote, key string, onProgress func(Progress)) error {
	_, stderr, exit, err := s.Bridge.CallVcs(ctx, []string{"annex", "copy", "--from", remote, "--key", key}, vcsbridge.RunOpts{})
	if err != nil {
		return errs.Wrap(errs.MissingExternalDependency, err, "run git-annex copy --from %s", remote)
	}
	if exit != 0 {
		return errs.New(errs.Transfer, "annex copy --from %s --key %s failed: %s", remote, key, stderr)
	}
	onProgress(Progress{TaskID: key, BytesDone: -1, BytesTotal: -1, Label: "copied from " + remote})
	return nil
}

// Put pushes key from the local annex to remote.
func (s *CloneSource) Put(ctx context.Context, remote, key string, onProgress func(Progress)) error {
	_, stderr, exit, err := s.Bridge.CallVcs(ctx, []string{"annex", "copy", "--to", remote, "--key", key}, vcsbridge.RunOpts{})
	if err != nil {
		return errs.Wrap(errs.MissingExternalDependency, err, "run git-annex copy --to %s", remote)
	}
	if exit != 0 {
		return errs.New(errs.Transfer, "annex copy --to %s --key %s failed: %s", remote, key, stderr)
	}
	onProgress(Progress{TaskID: key, BytesDone: -1, BytesTotal: -1, Label: "copied to " + remote})
	return nil
}

// Present reports whether remote already has key, via `git annex checkpresentkey`.
func (s *CloneSource) Present(ctx context.Context, remote, key string) (bool, error) {
	_, _, exit, err := s.Bridge.CallVcs(ctx, []string{"annex", "checkpresentkey", key, remote}, vcsbridge.RunOpts{})
	if err != nil {
		return false, errs.Wrap(errs.MissingExternalDependency, err, "run git-annex checkpresentkey")
	}
	return exit == 0, nil
}
