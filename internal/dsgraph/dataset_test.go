package dsgraph

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHandleReturnsSamePointerForSameRoot(t *testing.T) {
	defer forgetAll()
	root := t.TempDir()

	a, err := Handle(root, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	b, err := Handle(root, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if a != b {
		t.Fatalf("expected Handle to return the identical pointer for the same root")
	}
}

func TestHandleDistinctRootsDistinctPointers(t *testing.T) {
	defer forgetAll()
	a, err := Handle(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	b, err := Handle(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct roots to get distinct handles")
	}
}

func TestKindModeTrueBranchReflectState(t *testing.T) {
	ds := &Dataset{Root: t.TempDir()}

	assertEqual(t, int(ds.Kind()), int(KindPlain))
	assertEqual(t, int(ds.Mode()), int(ModeNormal))
	assertEqual(t, ds.TrueBranch(), "")

	ds.mu.Lock()
	ds.kind = KindAnnexed
	ds.mode = ModeAdjusted
	ds.trueBranch = "adjusted/master(unlocked)"
	ds.mu.Unlock()

	assertEqual(t, int(ds.Kind()), int(KindAnnexed))
	assertEqual(t, int(ds.Mode()), int(ModeAdjusted))
	assertEqual(t, ds.TrueBranch(), "adjusted/master(unlocked)")
}

func TestInstalled(t *testing.T) {
	root := t.TempDir()
	ds := &Dataset{Root: root}
	if ds.Installed() {
		t.Fatalf("expected a bare tempdir not to look installed")
	}

	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if !ds.Installed() {
		t.Fatalf("expected a .git directory to mark the dataset installed")
	}
}
