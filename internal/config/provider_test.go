package config

import "testing"

func TestMatchProviderPicksLongestURLPrefix(t *testing.T) {
	st := New("", "", "", "", "")
	st.SetOverride("datalad.credential.generic.url", "https://example.org")
	st.SetOverride("datalad.credential.generic.user", "alice")
	st.SetOverride("datalad.credential.generic.secret", "s3cr3t")
	st.SetOverride("datalad.credential.specific.url", "https://example.org/sub")
	st.SetOverride("datalad.credential.specific.user", "bob")
	st.SetOverride("datalad.credential.specific.secret", "bobsecret")

	p, err := st.MatchProvider("https://example.org/sub/path/file.txt")
	if err != nil {
		t.Fatalf("MatchProvider: %v", err)
	}
	if p == nil {
		t.Fatalf("expected a matching provider")
	}
	assertEqual(t, p.Name, "specific")
	assertEqual(t, p.User, "bob")
}

func TestMatchProviderNoMatchReturnsNil(t *testing.T) {
	st := New("", "", "", "", "")
	st.SetOverride("datalad.credential.generic.url", "https://other.example")

	p, err := st.MatchProvider("https://example.org/file.txt")
	if err != nil {
		t.Fatalf("MatchProvider: %v", err)
	}
	if p != nil {
		t.Fatalf("expected no matching provider, got %+v", p)
	}
}

func TestProvidersScansAllConfiguredNames(t *testing.T) {
	st := New("", "", "", "", "")
	st.SetOverride("datalad.credential.a.user", "alice")
	st.SetOverride("datalad.credential.b.user", "bob")

	names := map[string]bool{}
	for _, p := range st.Providers() {
		names[p.Name] = true
	}
	if !names["a"] || !names["b"] {
		t.Fatalf("expected both providers to be discovered, got %+v", names)
	}
}
