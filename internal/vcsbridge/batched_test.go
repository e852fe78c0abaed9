package vcsbridge

import (
	"context"
	"os/exec"
	"testing"

	"github.com/datalad-core/datalad/internal/errs"
)

func TestTokenHashIsStableForSameToken(t *testing.T) {
	ctx := WithHelperToken(context.Background())
	tok := tokenOf(ctx)
	assertEqual(t, tokenHash(tok), tokenHash(tok))
}

func TestWithHelperTokenProducesDistinctTokens(t *testing.T) {
	tokA := tokenOf(WithHelperToken(context.Background()))
	tokB := tokenOf(WithHelperToken(context.Background()))
	if tokA == tokB {
		t.Fatalf("expected two WithHelperToken calls to produce distinct tokens")
	}
}

// TestQueryDetectsReentrancy simulates a caller re-entering a batched helper
// it already holds: the owner field on the helper is pre-set to the calling
// token's hash, so Query must refuse rather than block forever on h.mu.
func TestQueryDetectsReentrancy(t *testing.T) {
	pool := newHelperPool(nil)

	ctx := WithHelperToken(context.Background())
	tok := tokenOf(ctx)

	h := &helper{}
	h.owner = tokenHash(tok)
	pool.helpers.Set("reentrant", h)

	_, err := pool.Query(ctx, "reentrant", func() (*exec.Cmd, error) {
		t.Fatalf("spawn should not be invoked when reentrancy is detected")
		return nil, nil
	}, "request")

	if err == nil {
		t.Fatalf("expected a deadlock error")
	}
	if errs.KindOf(err) != errs.Internal {
		t.Fatalf("expected Internal kind, got %v", errs.KindOf(err))
	}
}

func TestTrimNL(t *testing.T) {
	assertEqual(t, trimNL("hello\n"), "hello")
	assertEqual(t, trimNL("hello\r\n"), "hello")
	assertEqual(t, trimNL("hello"), "hello")
	assertEqual(t, trimNL(""), "")
}
