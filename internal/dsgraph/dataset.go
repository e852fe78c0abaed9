// Package dsgraph presents the recursive tree of datasets rooted at any
// filesystem path as a queryable graph, and resolves path arguments to
// (dataset, relpath) pairs.
//
// The Flyweight identity rule holds: for any absolute canonical path that
// is a dataset root, Dataset(path) always returns the identical in-memory
// handle rather than re-deriving state from strings repeatedly.
package dsgraph

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// Kind is a Dataset's kind: plain (VCS only) or annexed (VCS + annex).
type Kind int

const (
	KindPlain Kind = iota
	KindAnnexed
)

// Mode is a Dataset's mode: normal working tree, or an adjusted branch
// checkout rewritten for a crippled filesystem.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdjusted
)

// Dataset is the in-memory handle for one dataset root. Two Handle
// constructions of the same canonical path always return the identical
// *Dataset pointer.
type Dataset struct {
	Root   string // absolute, canonical filesystem path
	ID     uuid.UUID
	Bridge *vcsbridge.Bridge
	Config *config.Store

	mu          sync.RWMutex
	kind        Kind
	mode        Mode
	trueBranch  string // only meaningful when mode == ModeAdjusted
	subdatasets map[string]*SubdatasetRecord // path -> record, loaded lazily
	loaded      bool

	log *logrus.Entry
}

// registry is the process-wide Flyweight table keyed on canonical dataset
// root path.
type registry struct {
	mu    sync.Mutex
	byRoot map[string]*Dataset
}

var reg = &registry{byRoot: make(map[string]*Dataset)}

// Handle returns the canonical *Dataset for root, constructing it on first
// use and serializing concurrent construction across threads.
func Handle(root string, log *logrus.Entry) (*Dataset, error) {
	canon, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "resolve dataset path %s", root)
	}
	canon = filepath.Clean(canon)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if ds, ok := reg.byRoot[canon]; ok {
		return ds, nil
	}

	ds := &Dataset{
		Root:        canon,
		Bridge:      vcsbridge.New(canon, "", "", log),
		subdatasets: make(map[string]*SubdatasetRecord),
		log:         log,
	}
	reg.byRoot[canon] = ds
	return ds, nil
}

// forgetAll clears the Flyweight registry; exposed only for tests, which
// must not leak handles across cases that reuse the same tempdir path.
func forgetAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byRoot = make(map[string]*Dataset)
}

// Refresh re-probes Kind/Mode/UUID from the working tree, for use right
// after creation and at any later point where on-disk state may have
// changed under us.
func (ds *Dataset) Refresh(ctx context.Context) error {
	annexed, err := ds.Bridge.IsAnnexed(ctx)
	if err != nil {
		return err
	}
	adjusted, trueBranch, err := ds.Bridge.IsAdjusted(ctx)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if annexed {
		ds.kind = KindAnnexed
	} else {
		ds.kind = KindPlain
	}
	if adjusted {
		ds.mode = ModeAdjusted
		ds.trueBranch = trueBranch
	} else {
		ds.mode = ModeNormal
		ds.trueBranch = ""
	}
	return nil
}

// Kind returns the last-probed Kind; call Refresh first if freshness
// matters.
func (ds *Dataset) Kind() Kind {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.kind
}

// Mode returns the last-probed Mode.
func (ds *Dataset) Mode() Mode {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.mode
}

// TrueBranch returns the underlying non-adjusted branch name when Mode is
// ModeAdjusted, else "".
func (ds *Dataset) TrueBranch() string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.trueBranch
}

// Installed reports whether this dataset's working tree exists locally.
func (ds *Dataset) Installed() bool {
	return exists(filepath.Join(ds.Root, ".vcs")) || exists(filepath.Join(ds.Root, ".git"))
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
