package transfer

import "testing"

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func TestParseKeyWithSize(t *testing.T) {
	k, err := ParseKey("SHA256E-s1234--abcdef0123456789")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	assertEqual(t, k.Backend, "SHA256E")
	assertEqual(t, k.HasSize, true)
	assertEqual(t, uint64(k.Size), uint64(1234))
	assertEqual(t, k.Digest, "abcdef0123456789")
	assertEqual(t, k.String(), "SHA256E-s1234--abcdef0123456789")
}

func TestParseKeyWithoutSize(t *testing.T) {
	k, err := ParseKey("MD5E--abcdef0123456789.txt")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	assertEqual(t, k.Backend, "MD5E")
	assertEqual(t, k.HasSize, false)
	assertEqual(t, k.Digest, "abcdef0123456789.txt")
}

func TestParseKeyMalformed(t *testing.T) {
	cases := []string{
		"",
		"nobackendseparator",
		"SHA256E-nodigestsep",
	}
	for _, raw := range cases {
		if _, err := ParseKey(raw); err == nil {
			t.Errorf("ParseKey(%q): expected error, got nil", raw)
		}
	}
}

func TestParseKeyBadSize(t *testing.T) {
	if _, err := ParseKey("SHA256E-snotanumber--digest"); err == nil {
		t.Fatalf("ParseKey: expected error for non-numeric size field")
	}
}

func TestParseKeyRoundtrip(t *testing.T) {
	raw := "SHA1-s42--deadbeef"
	k, err := ParseKey(raw)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	assertEqual(t, k.String(), raw)
}
