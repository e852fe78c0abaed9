package dsgraph

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseRegistryExtractsFields(t *testing.T) {
	raw := []byte(`[submodule "sub1"]
	path = sub1
	url = https://example.org/sub1.git
	datalad-id = 6ba7b810-9dad-11d1-80b4-00c04fd430c8
	datalad-url = ///sub1
`)
	records, err := parseRegistry(raw)
	if err != nil {
		t.Fatalf("parseRegistry: %v", err)
	}
	rec, ok := records["sub1"]
	if !ok {
		t.Fatalf("expected a record for sub1")
	}
	assertEqual(t, rec.URL, "https://example.org/sub1.git")
	assertEqual(t, rec.DataladURL, "///sub1")
	assertEqual(t, rec.DataladID.String(), "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
}

func TestParseRegistryIgnoresMalformedIDSilently(t *testing.T) {
	raw := []byte(`[submodule "sub1"]
	path = sub1
	datalad-id = not-a-uuid
`)
	records, err := parseRegistry(raw)
	if err != nil {
		t.Fatalf("parseRegistry: %v", err)
	}
	if records["sub1"].DataladID != (uuid.UUID{}) {
		t.Fatalf("expected a malformed datalad-id to be left zero-valued")
	}
}

func TestParseRegistryEmptyInput(t *testing.T) {
	records, err := parseRegistry(nil)
	if err != nil {
		t.Fatalf("parseRegistry: %v", err)
	}
	assertEqual(t, len(records), 0)
}

func TestSerializeRegistryRoundtrip(t *testing.T) {
	id := uuid.New()
	records := map[string]*SubdatasetRecord{
		"sub1": {Path: "sub1", URL: "https://example.org/sub1.git", DataladID: id, DataladURL: "///sub1"},
	}
	raw := serializeRegistry(records)
	got, err := parseRegistry(raw)
	if err != nil {
		t.Fatalf("parseRegistry: %v", err)
	}
	rec, ok := got["sub1"]
	if !ok {
		t.Fatalf("expected sub1 to round-trip")
	}
	assertEqual(t, rec.URL, "https://example.org/sub1.git")
	assertEqual(t, rec.DataladID, id)
	assertEqual(t, rec.DataladURL, "///sub1")
}

func TestOrderedRecordsIsSortedByPath(t *testing.T) {
	records := map[string]*SubdatasetRecord{
		"zeta": {Path: "zeta"},
		"alpha": {Path: "alpha"},
		"mid":   {Path: "mid"},
	}
	ordered := orderedRecords(records)
	assertEqual(t, len(ordered), 3)
	assertEqual(t, ordered[0].Path, "alpha")
	assertEqual(t, ordered[1].Path, "mid")
	assertEqual(t, ordered[2].Path, "zeta")
}
