package resultbus

import (
	"bytes"
	"strings"
	"testing"
)

func TestBusRendersRecordsAndTracksErrors(t *testing.T) {
	var buf bytes.Buffer
	b := NewBus("bus-test-continue", &buf, Filter{}, OnFailureContinue)

	b.Emit(Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt", Message: "ok"})
	b.Emit(Record{Action: "get", Status: StatusError, Path: "/ds/b.txt", Message: "failed"})
	err := b.Close()

	if err != nil {
		t.Fatalf("expected OnFailureContinue not to produce a stop error, got %v", err)
	}
	if !b.ErrorSeen() {
		t.Fatalf("expected ErrorSeen to be true after an error record")
	}
	assertEqual(t, b.ExitCode(), 1)

	out := buf.String()
	if !strings.Contains(out, "/ds/a.txt") || !strings.Contains(out, "/ds/b.txt") {
		t.Fatalf("expected both records rendered, got %q", out)
	}
}

func TestBusStopsOnFailureStop(t *testing.T) {
	var buf bytes.Buffer
	b := NewBus("bus-test-stop", &buf, Filter{}, OnFailureStop)

	b.Emit(Record{Action: "get", Status: StatusError, Path: "/ds/a.txt", Message: "boom"})
	err := b.Close()

	if err == nil {
		t.Fatalf("expected OnFailureStop to produce a stop error after an error record")
	}
	assertEqual(t, b.ExitCode(), 1)
}

func TestBusOnFailureIgnoreSkipsFilterAndRender(t *testing.T) {
	var buf bytes.Buffer
	b := NewBus("bus-test-ignore", &buf, Filter{}, OnFailureIgnore)

	b.Emit(Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt", Message: "ok"})
	err := b.Close()

	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected OnFailureIgnore to render nothing, got %q", buf.String())
	}
}

func TestBusAppliesFilter(t *testing.T) {
	var buf bytes.Buffer
	b := NewBus("bus-test-filter", &buf, Filter{Statuses: []Status{StatusError}}, OnFailureContinue)

	b.Emit(Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt", Message: "ok"})
	b.Emit(Record{Action: "get", Status: StatusError, Path: "/ds/b.txt", Message: "failed"})
	if err := b.Close(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "/ds/a.txt") {
		t.Fatalf("expected the OK record to be filtered out, got %q", out)
	}
	if !strings.Contains(out, "/ds/b.txt") {
		t.Fatalf("expected the error record to pass the filter, got %q", out)
	}
}

func TestBusDispatchesMatchingHooks(t *testing.T) {
	var buf bytes.Buffer
	var dispatched []string
	b := NewBus("bus-test-hooks", &buf, Filter{}, OnFailureContinue)
	b.Hooks = []Hook{{Name: "notify", Match: "status=error", Action: "notify {path}"}}
	b.HookDispatch = func(commandLine string) { dispatched = append(dispatched, commandLine) }

	b.Emit(Record{Action: "get", Status: StatusOK, Path: "/ds/a.txt", Message: "ok"})
	b.Emit(Record{Action: "get", Status: StatusError, Path: "/ds/b.txt", Message: "failed"})
	_ = b.Close()

	assertEqual(t, len(dispatched), 1)
	assertEqual(t, dispatched[0], "notify /ds/b.txt")
}
