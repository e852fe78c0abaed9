package resultbus

import "testing"

func TestHookMatchesSingleClause(t *testing.T) {
	h := Hook{Match: "status=error"}
	if !h.Matches(Record{Status: StatusError}) {
		t.Fatalf("expected matching status to pass")
	}
	if h.Matches(Record{Status: StatusOK}) {
		t.Fatalf("expected mismatched status to fail")
	}
}

func TestHookMatchesMultipleClauses(t *testing.T) {
	h := Hook{Match: "status=error, action=get"}
	if !h.Matches(Record{Status: StatusError, Action: "get"}) {
		t.Fatalf("expected both clauses to match")
	}
	if h.Matches(Record{Status: StatusError, Action: "drop"}) {
		t.Fatalf("expected a mismatched clause to fail the whole match")
	}
}

func TestHookMatchesFieldClause(t *testing.T) {
	h := Hook{Match: "remote=origin"}
	if !h.Matches(Record{Fields: map[string]interface{}{"remote": "origin"}}) {
		t.Fatalf("expected a matching action-specific field to pass")
	}
	if h.Matches(Record{Fields: map[string]interface{}{"remote": "backup"}}) {
		t.Fatalf("expected a mismatched field value to fail")
	}
}

func TestHookMatchesEmptyIsAlwaysTrue(t *testing.T) {
	h := Hook{Match: ""}
	if !h.Matches(Record{Status: StatusError}) {
		t.Fatalf("expected an empty match expression to match everything")
	}
}

func TestHookRenderExpandsWellKnownAndFieldPlaceholders(t *testing.T) {
	h := Hook{Action: "notify --path {path} --remote {remote}"}
	r := Record{Path: "/ds/a.txt", Fields: map[string]interface{}{"remote": "origin"}}
	assertEqual(t, h.Render(r), "notify --path /ds/a.txt --remote origin")
}

func TestHookRenderLeavesUnknownPlaceholdersIntact(t *testing.T) {
	h := Hook{Action: "notify {nonexistent}"}
	assertEqual(t, h.Render(Record{}), "notify {nonexistent}")
}
