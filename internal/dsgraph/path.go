package dsgraph

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/datalad-core/datalad/internal/errs"
)

func writeWorkingFile(root, relpath string, content []byte) error {
	full := filepath.Join(root, filepath.FromSlash(relpath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.Wrap(errs.Permission, err, "create directory for %s", full)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errs.Wrap(errs.Permission, err, "write %s", full)
	}
	return nil
}

// Resolved is a (dataset, relpath-within-dataset) pair, the result of path
// resolution.
type Resolved struct {
	Dataset *Dataset
	Relpath string // POSIX-separated, relative to Dataset.Root
}

// ResolveFromCWD resolves a relative path argument given on the command
// line against cwd.
func ResolveFromCWD(cwd, arg string) (Resolved, error) {
	abs := arg
	if !filepath.IsAbs(arg) {
		abs = filepath.Join(cwd, arg)
	}
	return resolveAbs(abs)
}

// ResolveFromDataset resolves a relative path argument given to a method of
// a dataset handle against that dataset's root.
func (ds *Dataset) ResolveFromDataset(arg string) (Resolved, error) {
	abs := arg
	if !filepath.IsAbs(arg) {
		abs = filepath.Join(ds.Root, arg)
	}
	return resolveAbs(abs)
}

func resolveAbs(abs string) (Resolved, error) {
	root, err := discoverRoot(abs)
	if err != nil {
		return Resolved{}, err
	}
	ds, err := Handle(root, nil)
	if err != nil {
		return Resolved{}, err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return Resolved{}, errs.Wrap(errs.Internal, err, "compute relpath for %s under %s", abs, root)
	}
	return Resolved{Dataset: ds, Relpath: filepath.ToSlash(rel)}, nil
}

// discoverRoot walks upward from p to the nearest dataset root.
func discoverRoot(p string) (string, error) {
	cur := p
	for {
		if isDatasetRoot(cur) {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", errs.New(errs.NoDataset, "no dataset found containing %s", p)
		}
		cur = parent
	}
}

func isDatasetRoot(p string) bool {
	return exists(filepath.Join(p, ".vcs")) || exists(filepath.Join(p, ".git"))
}

// ResolveShorthand handles the two shorthand tokens: `^` resolves to the
// topmost superdataset of cwd, `^.` to the closest containing dataset.
func ResolveShorthand(cwd, token string) (string, error) {
	switch token {
	case "^.":
		root, err := discoverRoot(cwd)
		if err != nil {
			return "", err
		}
		return root, nil
	case "^":
		root, err := discoverRoot(cwd)
		if err != nil {
			return "", err
		}
		top := root
		for {
			parent := filepath.Dir(top)
			if parent == top {
				break
			}
			if isDatasetRoot(parent) {
				top = parent
				continue
			}
			// A parent directory inside a dataset that is not itself a
			// root: continue from the root of that containing dataset.
			grandparentRoot, err := discoverRoot(parent)
			if err != nil {
				break
			}
			top = grandparentRoot
		}
		return top, nil
	default:
		return "", errs.New(errs.InvalidArgument, "unknown shorthand token %q", token)
	}
}

// DefaultDatasetToken is the reserved "configured default dataset location"
// token, handled at the argument-parsing boundary (e.g. cmd/datalad flag
// defaulting) rather than here.
const DefaultDatasetToken = "///"

// IsDefaultDatasetToken reports whether arg is the reserved triple-separator
// token, independent of platform path separator.
func IsDefaultDatasetToken(arg string) bool {
	return arg == DefaultDatasetToken || arg == strings.Repeat(string(filepath.Separator), 3)
}
