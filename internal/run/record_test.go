package run

import "testing"

func TestEncodeDecodeRoundtrip(t *testing.T) {
	rec := Record{
		Command: "echo hi",
		Exit:    0,
		Inputs:  []string{"a.txt"},
		Outputs: []string{"b.txt"},
		PWD:     "/ds",
	}
	msg, err := Encode("do the thing", rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, subject, ok, err := Decode(msg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatalf("expected Decode to find a run record block")
	}
	assertEqual(t, subject, "do the thing")
	assertEqual(t, got.Command, rec.Command)
	assertEqual(t, got.Exit, rec.Exit)
	assertEqual(t, got.PWD, rec.PWD)
	assertEqual(t, len(got.Inputs), 1)
	assertEqual(t, got.Inputs[0], "a.txt")
	assertEqual(t, len(got.Outputs), 1)
	assertEqual(t, got.Outputs[0], "b.txt")
}

func TestDecodeNonRunCommitReportsNotOK(t *testing.T) {
	_, _, ok, err := Decode("just an ordinary commit message\n\nwith a body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a message with no run record block")
	}
}

func TestDecodeMissingClosingMarkerErrors(t *testing.T) {
	msg := "subject\n\n" + recordMarkerStart + "\ncmd: echo\nexit: 0\n"
	_, _, ok, err := Decode(msg)
	if ok {
		t.Fatalf("expected ok=false when the closing marker is missing")
	}
	if err == nil {
		t.Fatalf("expected an error when the closing marker is missing")
	}
}

func TestEncodeDropsOmittedFields(t *testing.T) {
	msg, err := Encode("subject", Record{Command: "echo", Exit: 0, PWD: "/ds"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, _, ok, err := Decode(msg)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	assertEqual(t, len(got.Inputs), 0)
	assertEqual(t, len(got.Outputs), 0)
	assertEqual(t, got.ChainID, "")
}
