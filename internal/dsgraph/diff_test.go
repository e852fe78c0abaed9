package dsgraph

import (
	"strings"
	"testing"
)

func TestModeToType(t *testing.T) {
	assertEqual(t, modeToType("120755"), "symlink")
	assertEqual(t, modeToType("160000"), "dataset")
	assertEqual(t, modeToType("000000"), "")
	assertEqual(t, modeToType("100644"), "file")
}

func TestKeySizeFromMode(t *testing.T) {
	n, ok := keySizeFromMode("12345")
	if !ok {
		t.Fatalf("expected a numeric mode to parse")
	}
	assertEqual(t, n, int64(12345))

	_, ok = keySizeFromMode("not-a-number")
	if ok {
		t.Fatalf("expected a non-numeric mode to fail")
	}
}

func TestUnifiedTextRendersHeaderAndHunk(t *testing.T) {
	before := []byte("line1\nline2\nline3\n")
	after := []byte("line1\nchanged\nline3\n")

	out, err := UnifiedText("a.txt", before, after)
	if err != nil {
		t.Fatalf("UnifiedText: %v", err)
	}
	if !strings.Contains(out, "a.txt (before)") || !strings.Contains(out, "a.txt (after)") {
		t.Fatalf("expected file labels in diff output, got %q", out)
	}
	if !strings.Contains(out, "-line2") || !strings.Contains(out, "+changed") {
		t.Fatalf("expected the changed line in diff output, got %q", out)
	}
}

func TestUnifiedTextIdenticalInputsProduceNoHunks(t *testing.T) {
	same := []byte("unchanged\n")
	out, err := UnifiedText("a.txt", same, same)
	if err != nil {
		t.Fatalf("UnifiedText: %v", err)
	}
	if strings.Contains(out, "@@") {
		t.Fatalf("expected no diff hunks for identical input, got %q", out)
	}
}
