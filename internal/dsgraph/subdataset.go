package dsgraph

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/datalad-core/datalad/internal/errs"
)

// SubdatasetState is the presence/modification state a subdatasets query
// reports per record.
type SubdatasetState string

const (
	StatePresent SubdatasetState = "present"
	StateAbsent  SubdatasetState = "absent"
	StateModified SubdatasetState = "modified"
)

// SubdatasetRecord is the four-field pointer to a subdataset recorded in a
// parent.
type SubdatasetRecord struct {
	Path      string // POSIX relpath within the parent, even on Windows
	URL       string // resolved-at-install-time source
	DataladID uuid.UUID
	DataladURL string // original unresolved URL (ria+…, ///, …)
	Commit    string // the subdataset's HEAD at registration time

	State SubdatasetState `yaml:"-"`
}

// registryFileName is the parent's tracked-tree pointer file, generalizing
// the VCS's native ".gitmodules" into a name-agnostic constant so the rest
// of the package never hardcodes the underlying VCS's convention.
const registryFileName = ".gitmodules"

// parseRegistry decodes the `.gitmodules`-equivalent file content into
// records keyed by path. The on-wire format is INI-like, matching the VCS's
// own submodule file grammar: `[submodule "name"]` stanzas with
// `path`/`url`/`datalad-id`/`datalad-url` keys.
func parseRegistry(raw []byte) (map[string]*SubdatasetRecord, error) {
	out := make(map[string]*SubdatasetRecord)
	var cur *SubdatasetRecord
	lines := strings.Split(string(raw), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[submodule") {
			cur = &SubdatasetRecord{}
			continue
		}
		if cur == nil {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		switch key {
		case "path":
			cur.Path = path.Clean(val)
			out[cur.Path] = cur
		case "url":
			cur.URL = val
		case "datalad-id":
			if id, err := uuid.Parse(val); err == nil {
				cur.DataladID = id
			}
		case "datalad-url":
			cur.DataladURL = val
		}
	}
	return out, nil
}

func serializeRegistry(records map[string]*SubdatasetRecord) []byte {
	var b strings.Builder
	for _, rec := range orderedRecords(records) {
		b.WriteString("[submodule \"" + rec.Path + "\"]\n")
		b.WriteString("\tpath = " + rec.Path + "\n")
		b.WriteString("\turl = " + rec.URL + "\n")
		if rec.DataladID != (uuid.UUID{}) {
			b.WriteString("\tdatalad-id = " + rec.DataladID.String() + "\n")
		}
		if rec.DataladURL != "" {
			b.WriteString("\tdatalad-url = " + rec.DataladURL + "\n")
		}
	}
	return []byte(b.String())
}

func orderedRecords(records map[string]*SubdatasetRecord) []*SubdatasetRecord {
	paths := make([]string, 0, len(records))
	for p := range records {
		paths = append(paths, p)
	}
	// Stable, deterministic output regardless of map iteration order.
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && paths[j-1] > paths[j]; j-- {
			paths[j-1], paths[j] = paths[j], paths[j-1]
		}
	}
	out := make([]*SubdatasetRecord, 0, len(paths))
	for _, p := range paths {
		out = append(out, records[p])
	}
	return out
}

// loadRegistry reads and caches .gitmodules-equivalent content for ds.
func (ds *Dataset) loadRegistry(ctx context.Context) (map[string]*SubdatasetRecord, error) {
	ds.mu.RLock()
	if ds.loaded {
		defer ds.mu.RUnlock()
		return ds.subdatasets, nil
	}
	ds.mu.RUnlock()

	raw, err := ds.Bridge.ReadBranchFile(ctx, "HEAD", registryFileName)
	if err != nil {
		raw = nil // no subdatasets registered yet is not an error
	}
	records, perr := parseRegistry(raw)
	if perr != nil {
		return nil, perr
	}

	ds.mu.Lock()
	ds.subdatasets = records
	ds.loaded = true
	ds.mu.Unlock()
	return records, nil
}

// RegisterSubdataset records a new subdataset's (path, url, uuid, commit) in
// the parent's tracked files: a subdataset is added by cloning or creating
// at a path within the parent, then recording its pointer here. The caller
// is responsible for the single advancing commit.
func (ds *Dataset) RegisterSubdataset(ctx context.Context, rec SubdatasetRecord) error {
	records, err := ds.loadRegistry(ctx)
	if err != nil {
		return err
	}
	if existing, ok := records[rec.Path]; ok && existing.DataladID != rec.DataladID && existing.DataladID != (uuid.UUID{}) {
		return errs.New(errs.Conflict, "subdataset at %s already registered with id %s, refusing to overwrite with %s", rec.Path, existing.DataladID, rec.DataladID)
	}
	records[rec.Path] = &rec

	raw := serializeRegistry(records)
	// The caller stages registryFileName for commit; dsgraph only
	// maintains the in-memory view plus the bytes to write.
	if err := writeWorkingFile(ds.Root, registryFileName, raw); err != nil {
		return err
	}
	ds.mu.Lock()
	ds.subdatasets[rec.Path] = &rec
	ds.mu.Unlock()
	return nil
}

// Subdatasets implements the subdatasets() query.
// recursionLimit <= 0 means unbounded.
func (ds *Dataset) Subdatasets(ctx context.Context, recursive bool, contains string, recursionLimit int) ([]SubdatasetRecord, error) {
	records, err := ds.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	var out []SubdatasetRecord
	for _, rec := range orderedRecords(records) {
		if contains != "" && !strings.HasPrefix(path.Clean(contains), rec.Path) {
			continue
		}
		r := *rec
		r.State, err = ds.subdatasetState(ctx, *rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)

		if recursive && (recursionLimit <= 0 || recursionLimit > 1) && r.State != StateAbsent {
			child, err := Handle(path.Join(ds.Root, rec.Path), ds.log)
			if err != nil {
				return nil, err
			}
			nextLimit := recursionLimit
			if nextLimit > 0 {
				nextLimit--
			}
			childRecs, err := child.Subdatasets(ctx, recursive, contains, nextLimit)
			if err != nil {
				return nil, err
			}
			out = append(out, childRecs...)
		}
	}
	return out, nil
}

func (ds *Dataset) subdatasetState(ctx context.Context, rec SubdatasetRecord) (SubdatasetState, error) {
	childRoot := path.Join(ds.Root, rec.Path)
	if !exists(childRoot) {
		return StateAbsent, nil
	}
	child, err := Handle(childRoot, ds.log)
	if err != nil {
		return "", err
	}
	head, err := child.Bridge.HeadCommit(ctx)
	if err != nil {
		return StateModified, nil //nolint: the child may be present but uninitialized
	}
	if head == rec.Commit {
		return StatePresent, nil
	}
	return StateModified, nil
}

// MarshalRegistrySidecar serializes records to YAML for tooling that wants
// a structured view (used by `datalad metadata`-adjacent reporting, not the
// authoritative on-wire format).
func MarshalRegistrySidecar(records map[string]*SubdatasetRecord) ([]byte, error) {
	return yaml.Marshal(records)
}
