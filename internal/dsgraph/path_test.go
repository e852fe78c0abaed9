package dsgraph

import (
	"os"
	"path/filepath"
	"testing"
)

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

// makeDatasetRoot marks dir as a dataset root by creating a .git directory
// inside it, the same marker isDatasetRoot checks for.
func makeDatasetRoot(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git under %s: %v", dir, err)
	}
}

func TestResolveFromCWD(t *testing.T) {
	defer forgetAll()

	root := t.TempDir()
	makeDatasetRoot(t, root)
	sub := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}

	resolved, err := ResolveFromCWD(root, "sub/dir")
	if err != nil {
		t.Fatalf("ResolveFromCWD: %v", err)
	}
	rootCanon, _ := filepath.Abs(root)
	assertEqual(t, resolved.Dataset.Root, filepath.Clean(rootCanon))
	assertEqual(t, resolved.Relpath, "sub/dir")
}

func TestResolveFromCWDNoDataset(t *testing.T) {
	defer forgetAll()

	dir := t.TempDir()
	if _, err := ResolveFromCWD(dir, "x"); err == nil {
		t.Fatalf("expected error resolving outside any dataset")
	}
}

func TestDiscoverRootNested(t *testing.T) {
	defer forgetAll()

	top := t.TempDir()
	makeDatasetRoot(t, top)
	nested := filepath.Join(top, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}

	root, err := discoverRoot(nested)
	if err != nil {
		t.Fatalf("discoverRoot: %v", err)
	}
	topCanon, _ := filepath.Abs(top)
	assertEqual(t, root, filepath.Clean(topCanon))
}

func TestResolveShorthandClosest(t *testing.T) {
	defer forgetAll()

	top := t.TempDir()
	makeDatasetRoot(t, top)

	got, err := ResolveShorthand(top, "^.")
	if err != nil {
		t.Fatalf("ResolveShorthand ^.: %v", err)
	}
	topCanon, _ := filepath.Abs(top)
	assertEqual(t, got, filepath.Clean(topCanon))
}

func TestResolveShorthandUnknownToken(t *testing.T) {
	if _, err := ResolveShorthand(".", "^^"); err == nil {
		t.Fatalf("expected error for unknown shorthand token")
	}
}

func TestIsDefaultDatasetToken(t *testing.T) {
	if !IsDefaultDatasetToken(DefaultDatasetToken) {
		t.Fatalf("expected DefaultDatasetToken to match itself")
	}
	if IsDefaultDatasetToken("not-the-token") {
		t.Fatalf("expected arbitrary string not to match")
	}
}
