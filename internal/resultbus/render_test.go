package resultbus

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestRendererForFallsBackToGeneric(t *testing.T) {
	r := RendererFor("no-such-command-registered")
	var buf bytes.Buffer
	r(&buf, Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt", Message: "done"})
	if !strings.Contains(buf.String(), "/ds/a.txt") {
		t.Fatalf("expected fallback to GenericRenderer, got %q", buf.String())
	}
}

func TestRegisterRendererOverridesLookup(t *testing.T) {
	RegisterRenderer("render-test-custom", func(w io.Writer, r Record) {
		fmt.Fprintf(w, "custom: %s", r.Action)
	})

	r := RendererFor("render-test-custom")
	var buf bytes.Buffer
	r(&buf, Record{Action: "get"})
	assertEqual(t, buf.String(), "custom: get")
}

func TestGenericRendererFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	GenericRenderer(&buf, Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt", Message: "got %d bytes", Args: []interface{}{42}})
	got := buf.String()
	want := "ok /ds/a.txt (get): got 42 bytes\n"
	assertEqual(t, got, want)
}

func TestColorEnabledFalseForNonFileWriter(t *testing.T) {
	var buf bytes.Buffer
	if colorEnabled(&buf) {
		t.Fatalf("expected a bytes.Buffer to never be treated as a terminal")
	}
}

func TestColorForKnownStatuses(t *testing.T) {
	if colorFor(StatusOK) == "" {
		t.Fatalf("expected a color code for StatusOK")
	}
	if colorFor(StatusError) == "" {
		t.Fatalf("expected a color code for StatusError")
	}
	if colorFor(StatusImpossible) == "" {
		t.Fatalf("expected a color code for StatusImpossible")
	}
	if colorFor(StatusNotNeeded) != "" {
		t.Fatalf("expected no color code for StatusNotNeeded")
	}
}
