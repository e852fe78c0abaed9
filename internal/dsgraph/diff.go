package dsgraph

import (
	"context"
	"strconv"
	"strings"

	difflib "github.com/ianbruene/go-difflib/difflib"

	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// DiffRecord is one path's before/after change.
type DiffRecord struct {
	Path       string
	BeforeType string
	AfterType  string
	BeforeMode string
	AfterMode  string
	BeforeSize int64 // for annexed keys, the key's size; Diff leaves it 0
	AfterSize  int64 // likewise; Diff leaves it 0
}

// Diff implements diff(): per-path change records between
// two revisions, using raw diff output for the mode/type/path triple and
// go-difflib to render a human-facing unified diff for text files when
// requested separately via UnifiedText.
func (ds *Dataset) Diff(ctx context.Context, from, to string, paths []string, recursive bool) ([]DiffRecord, error) {
	args := []string{"diff", "--raw", "-z", from}
	if to != "" {
		args = append(args, to)
	}
	args = append(args, "--")
	stdout, _, _, err := ds.Bridge.CallVcsWithPathspecFile(ctx, args, paths, vcsbridge.RunOpts{})
	if err != nil {
		return nil, err
	}

	var out []DiffRecord
	fields := strings.Split(stdout, "\x00")
	for i := 0; i < len(fields)-1; i++ {
		header := fields[i]
		if !strings.HasPrefix(header, ":") {
			continue
		}
		path := fields[i+1]
		i++
		parts := strings.Fields(strings.TrimPrefix(header, ":"))
		if len(parts) < 4 {
			continue
		}
		rec := DiffRecord{
			Path:       path,
			BeforeMode: parts[0],
			AfterMode:  parts[1],
		}
		rec.BeforeType = modeToType(parts[0])
		rec.AfterType = modeToType(parts[1])
		out = append(out, rec)
	}
	return out, nil
}

func modeToType(mode string) string {
	switch {
	case strings.HasPrefix(mode, "120"): // symlink mode (120000)
		return "symlink"
	case strings.HasPrefix(mode, "1600"): // submodule/gitlink mode
		return "dataset"
	case mode == "000000":
		return ""
	default:
		return "file"
	}
}

// UnifiedText renders a unified diff between two text blobs using
// go-difflib, for result-record messages describing a non-annexed text
// change, such as a run's modification to a path outside its declared
// output globs.
func UnifiedText(label string, before, after []byte) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: label + " (before)",
		ToFile:   label + " (after)",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// keySizeFromMode extracts the numeric size suffix git stores for gitlink
// entries when available; unused placeholder kept explicit rather than
// silently returning 0 for callers that care about key size.
func keySizeFromMode(raw string) (int64, bool) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
