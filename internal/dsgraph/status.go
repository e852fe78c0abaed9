package dsgraph

import (
	"context"
	"strings"

	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// FileState is the per-path state status() reports.
type FileState string

const (
	FileClean      FileState = "clean"
	FileModified   FileState = "modified"
	FileAdded      FileState = "added"
	FileDeleted    FileState = "deleted"
	FileUntracked  FileState = "untracked"
	FileTypeChanged FileState = "typechanged"
)

// EvalSubdatasetState controls how deep status() inspects subdatasets.
type EvalSubdatasetState string

const (
	EvalNo     EvalSubdatasetState = "no"
	EvalCommit EvalSubdatasetState = "commit"
	EvalFull   EvalSubdatasetState = "full"
)

// StatusRecord is one path's status() result.
type StatusRecord struct {
	Path  string
	State FileState
}

// Status implements status(). paths narrows the query; an
// empty slice means the whole dataset.
func (ds *Dataset) Status(ctx context.Context, paths []string, recursive bool, eval EvalSubdatasetState) ([]StatusRecord, error) {
	var out []StatusRecord

	porcelain, _, _, err := ds.Bridge.CallVcsWithPathspecFile(ctx, []string{"status", "--porcelain=v1", "--"}, paths, vcsbridge.RunOpts{})
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 3 {
			continue
		}
		code := line[:2]
		p := strings.TrimSpace(line[3:])
		out = append(out, StatusRecord{Path: p, State: classifyPorcelain(code)})
	}

	if eval == EvalNo {
		return out, nil
	}

	subs, err := ds.Subdatasets(ctx, false, "", 1)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		state := FileClean
		switch sub.State {
		case StateAbsent:
			state = FileDeleted
		case StateModified:
			state = FileModified
		case StatePresent:
			state = FileClean
		}
		out = append(out, StatusRecord{Path: sub.Path, State: state})

		if recursive && sub.State == StatePresent {
			child, err := Handle(joinRoot(ds.Root, sub.Path), ds.log)
			if err != nil {
				return nil, err
			}
			if eval == EvalFull {
				childRecords, err := child.Status(ctx, nil, recursive, eval)
				if err != nil {
					return nil, err
				}
				out = append(out, childRecords...)
			}
		}
	}
	return out, nil
}

func joinRoot(root, rel string) string { return root + string('/') + rel }

func classifyPorcelain(code string) FileState { //nolint:gocyclo
	switch {
	case code == "??":
		return FileUntracked
	case code[0] == 'A' || code[1] == 'A':
		return FileAdded
	case code[0] == 'D' || code[1] == 'D':
		return FileDeleted
	case code[0] == 'T' || code[1] == 'T':
		return FileTypeChanged
	case code == "  ":
		return FileClean
	default:
		return FileModified
	}
}
