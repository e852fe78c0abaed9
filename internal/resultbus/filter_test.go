package resultbus

import "testing"

func TestFilterMatchNoConstraintsPassesEverything(t *testing.T) {
	f := Filter{}
	if !f.Match(Record{Action: "get", Status: StatusError, Type: TypeFile, Path: "/any/path"}) {
		t.Fatalf("expected an empty Filter to match everything")
	}
}

func TestFilterMatchByStatus(t *testing.T) {
	f := Filter{Statuses: []Status{StatusOK, StatusNotNeeded}}
	if !f.Match(Record{Status: StatusOK}) {
		t.Fatalf("expected StatusOK to match")
	}
	if f.Match(Record{Status: StatusError}) {
		t.Fatalf("expected StatusError not to match")
	}
}

func TestFilterMatchByType(t *testing.T) {
	f := Filter{Types: []ObjectType{TypeDataset}}
	if !f.Match(Record{Type: TypeDataset}) {
		t.Fatalf("expected TypeDataset to match")
	}
	if f.Match(Record{Type: TypeFile}) {
		t.Fatalf("expected TypeFile not to match")
	}
}

func TestFilterMatchByPathPrefix(t *testing.T) {
	f := Filter{PathGlob: "/ds/sub/"}
	if !f.Match(Record{Path: "/ds/sub/file.txt"}) {
		t.Fatalf("expected a path under the prefix to match")
	}
	if f.Match(Record{Path: "/ds/other/file.txt"}) {
		t.Fatalf("expected a path outside the prefix not to match")
	}
}

func TestFilterMatchCombinesAllConstraints(t *testing.T) {
	f := Filter{Statuses: []Status{StatusOK}, Types: []ObjectType{TypeFile}, PathGlob: "/ds/"}
	if !f.Match(Record{Status: StatusOK, Type: TypeFile, Path: "/ds/a.txt"}) {
		t.Fatalf("expected a record matching every constraint to pass")
	}
	if f.Match(Record{Status: StatusOK, Type: TypeDirectory, Path: "/ds/a.txt"}) {
		t.Fatalf("expected a mismatched type to fail even when other constraints pass")
	}
}
