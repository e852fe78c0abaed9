package resultbus

import "testing"

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func TestRenderedWithNoArgsReturnsMessageVerbatim(t *testing.T) {
	r := Record{Message: "100%% done"}
	assertEqual(t, r.Rendered(), "100%% done")
}

func TestRenderedFormatsArgs(t *testing.T) {
	r := Record{Message: "copied %d of %d files", Args: []interface{}{3, 10}}
	assertEqual(t, r.Rendered(), "copied 3 of 10 files")
}

func TestSimilarToComparesActionAndStatus(t *testing.T) {
	a := Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt"}
	b := Record{Action: "get", Status: StatusOK, Path: "/ds/b.txt"}
	c := Record{Action: "get", Status: StatusError, Path: "/ds/a.txt"}

	if !a.similarTo(b) {
		t.Fatalf("expected records with same action/status to be similar regardless of path")
	}
	if a.similarTo(c) {
		t.Fatalf("expected differing status to break similarity")
	}
}
