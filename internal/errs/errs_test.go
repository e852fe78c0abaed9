package errs

import (
	"errors"
	"testing"
)

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func TestNewHasNoCause(t *testing.T) {
	e := New(InvalidArgument, "bad value %d", 42)
	assertEqual(t, e.Kind, InvalidArgument)
	assertEqual(t, e.Message, "bad value 42")
	if e.Cause() != nil {
		t.Fatalf("expected New to produce a nil cause")
	}
	assertEqual(t, e.Error(), "InvalidArgument: bad value 42")
}

func TestWrapNilCauseIsEquivalentToNew(t *testing.T) {
	e := Wrap(Internal, nil, "failed")
	if e.Cause() != nil {
		t.Fatalf("expected nil cause when wrapping nil")
	}
	assertEqual(t, e.Error(), "Internal: failed")
}

func TestWrapPreservesCauseChain(t *testing.T) {
	root := errors.New("boom")
	e := Wrap(External, root, "call failed")
	assertEqual(t, e.Kind, External)
	if e.Cause() == nil {
		t.Fatalf("expected non-nil cause")
	}

	chain := e.Chain()
	if len(chain) < 2 {
		t.Fatalf("expected a multi-element chain, got %v", chain)
	}
	assertEqual(t, chain[0], e.Error())
	assertEqual(t, chain[len(chain)-1], "boom")
}

func TestWithAttachesContextAndReturnsSelf(t *testing.T) {
	e := New(Conflict, "merge conflict")
	ret := e.With("dataset", "/tmp/ds").With("path", "a/b.txt")
	if ret != e {
		t.Fatalf("expected With to return the same *Error for chaining")
	}
	assertEqual(t, e.Context["dataset"], "/tmp/ds")
	assertEqual(t, e.Context["path"], "a/b.txt")
}

func TestKindOfExtractsKind(t *testing.T) {
	e := New(RemoteNotAvailable, "no remote")
	assertEqual(t, KindOf(e), RemoteNotAvailable)
	assertEqual(t, KindOf(errors.New("plain")), Internal)

	wrapped := Wrap(Permission, e, "denied")
	assertEqual(t, KindOf(wrapped), Permission)
}
