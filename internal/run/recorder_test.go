package run

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datalad-core/datalad/internal/dsgraph"
)

func TestExpandGlobsCollectsRelativeMatches(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write b.txt: %v", err)
	}

	got, err := expandGlobs(root, []string{"*.txt"}, OnFailureStop)
	if err != nil {
		t.Fatalf("expandGlobs: %v", err)
	}
	assertEqual(t, len(got), 2)
}

func TestExpandGlobsNoMatchErrorsByDefault(t *testing.T) {
	root := t.TempDir()
	if _, err := expandGlobs(root, []string{"*.missing"}, OnFailureStop); err == nil {
		t.Fatalf("expected an error for a glob with no matches")
	}
}

func TestExpandGlobsNoMatchSkippedOnContinue(t *testing.T) {
	root := t.TempDir()
	got, err := expandGlobs(root, []string{"*.missing"}, OnFailureContinue)
	if err != nil {
		t.Fatalf("expandGlobs: %v", err)
	}
	assertEqual(t, len(got), 0)
}

func TestExpandGlobsInvalidPatternErrors(t *testing.T) {
	root := t.TempDir()
	if _, err := expandGlobs(root, []string{"[invalid"}, OnFailureStop); err == nil {
		t.Fatalf("expected an error for a malformed glob pattern")
	}
}

func TestUnexpectedModsExcludesCleanAndDeclared(t *testing.T) {
	records := []dsgraph.StatusRecord{
		{Path: "clean.txt", State: dsgraph.FileClean},
		{Path: "out.txt", State: dsgraph.FileModified},
		{Path: "surprise.txt", State: dsgraph.FileUntracked},
	}
	got := unexpectedMods(records, []string{"out.txt"})
	assertEqual(t, len(got), 1)
	assertEqual(t, got[0], "surprise.txt")
}

func TestUnexpectedModsEmptyWhenAllDeclaredOrClean(t *testing.T) {
	records := []dsgraph.StatusRecord{
		{Path: "clean.txt", State: dsgraph.FileClean},
		{Path: "out.txt", State: dsgraph.FileAdded},
	}
	got := unexpectedMods(records, []string{"out.txt"})
	assertEqual(t, len(got), 0)
}
