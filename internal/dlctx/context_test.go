package dlctx

import "testing"

func TestNewStartsUncancelled(t *testing.T) {
	ctx := New(t.TempDir(), t.TempDir())
	defer ctx.Close()

	if ctx.Cancelled() {
		t.Fatalf("expected a fresh Context to be uncancelled")
	}
	select {
	case <-ctx.Done():
		t.Fatalf("expected Done channel to be open")
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := New(t.TempDir(), t.TempDir())
	defer ctx.Close()

	ctx.Cancel()
	ctx.Cancel() // must not panic on repeated Cancel

	if !ctx.Cancelled() {
		t.Fatalf("expected Context to be cancelled")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected Done channel to be closed")
	}
}

func TestCredentialCacheIsUsable(t *testing.T) {
	ctx := New(t.TempDir(), t.TempDir())
	defer ctx.Close()

	ctx.CredentialCache.Set("example.org", "secret-token")
	v, ok := ctx.CredentialCache.Get("example.org")
	if !ok {
		t.Fatalf("expected cached credential to be present")
	}
	if v.(string) != "secret-token" {
		t.Fatalf("expected cached value to round-trip, got %v", v)
	}
}
