package dsgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLookupProcedureFallsBackToBuiltin(t *testing.T) {
	ds := &Dataset{Root: t.TempDir()}
	proc, err := ds.LookupProcedure("text2git")
	if err != nil {
		t.Fatalf("LookupProcedure: %v", err)
	}
	assertEqual(t, proc.Name, "text2git")
	if _, ok := proc.Files[".gitattributes"]; !ok {
		t.Fatalf("expected text2git's .gitattributes file entry")
	}
}

func TestLookupProcedureUnknownErrors(t *testing.T) {
	ds := &Dataset{Root: t.TempDir()}
	if _, err := ds.LookupProcedure("no-such-procedure"); err == nil {
		t.Fatalf("expected an error for an unknown procedure")
	}
}

func TestLookupProcedurePrefersDatasetLocal(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".datalad", "custom")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "NOTES.md"), []byte("hello {{.DatasetID}}"), 0o644); err != nil {
		t.Fatalf("write NOTES.md: %v", err)
	}

	ds := &Dataset{Root: root}
	proc, err := ds.LookupProcedure("custom")
	if err != nil {
		t.Fatalf("LookupProcedure: %v", err)
	}
	assertEqual(t, proc.Files["NOTES.md"], "hello {{.DatasetID}}")
}

func TestRunProcedureRendersTemplatesToDisk(t *testing.T) {
	root := t.TempDir()
	ds := &Dataset{Root: root, ID: uuid.New()}

	if err := ds.RunProcedure(nil, "yoda"); err != nil {
		t.Fatalf("RunProcedure: %v", err)
	}

	readme, err := os.ReadFile(filepath.Join(root, "README.md"))
	if err != nil {
		t.Fatalf("read README.md: %v", err)
	}
	want := "# " + ds.ID.String() + "\n\nDataset root: " + root + "\n"
	assertEqual(t, string(readme), want)

	if _, err := os.Stat(filepath.Join(root, "code", ".gitkeep")); err != nil {
		t.Fatalf("expected code/.gitkeep to be created: %v", err)
	}
}
