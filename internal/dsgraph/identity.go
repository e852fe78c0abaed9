package dsgraph

import (
	"github.com/google/uuid"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/errs"
)

// idConfigKey is where a dataset's identity lives in branch-committed
// configuration.
const idConfigKey = "datalad.dataset.id"

// LoadID reads the dataset's UUID from its ConfigStore, if created.
func (ds *Dataset) LoadID() (uuid.UUID, bool, error) {
	raw, ok := ds.Config.Get(idConfigKey)
	if !ok {
		return uuid.UUID{}, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false, errs.Wrap(errs.InvalidArgument, err, "dataset %s: malformed %s value %q", ds.Root, idConfigKey, raw)
	}
	ds.mu.Lock()
	ds.ID = id
	ds.mu.Unlock()
	return id, true, nil
}

// CreateID assigns a fresh random UUID and records it at ScopeBranch,
// enforcing the immutability invariant: recording a different UUID for an
// already-identified repository is an error.
func (ds *Dataset) CreateID() (uuid.UUID, error) {
	if existing, ok, err := ds.LoadID(); err != nil {
		return uuid.UUID{}, err
	} else if ok {
		return uuid.UUID{}, errs.New(errs.Conflict, "dataset %s already has id %s; refusing to assign a new one", ds.Root, existing)
	}
	id := uuid.New()
	if err := ds.Config.Set(config.ScopeBranch, idConfigKey, id.String()); err != nil {
		return uuid.UUID{}, err
	}
	ds.mu.Lock()
	ds.ID = id
	ds.mu.Unlock()
	return id, nil
}

// VerifyID checks that id matches the dataset's recorded identity, enforcing
// immutability at points (e.g. subdataset registration) where a caller
// asserts what it expects the UUID to be.
func (ds *Dataset) VerifyID(id uuid.UUID) error {
	existing, ok, err := ds.LoadID()
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.NoDataset, "dataset %s has no recorded identity", ds.Root)
	}
	if existing != id {
		return errs.New(errs.Conflict, "dataset %s identity mismatch: recorded %s, expected %s", ds.Root, existing, id)
	}
	return nil
}
