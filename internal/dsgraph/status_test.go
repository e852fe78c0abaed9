package dsgraph

import "testing"

func TestClassifyPorcelain(t *testing.T) {
	cases := []struct {
		code string
		want FileState
	}{
		{"??", FileUntracked},
		{"A ", FileAdded},
		{" A", FileAdded},
		{"D ", FileDeleted},
		{" D", FileDeleted},
		{"T ", FileTypeChanged},
		{"  ", FileClean},
		{"M ", FileModified},
		{" M", FileModified},
	}
	for _, c := range cases {
		got := classifyPorcelain(c.code)
		if got != c.want {
			t.Fatalf("classifyPorcelain(%q) = %q, want %q", c.code, got, c.want)
		}
	}
}

func TestJoinRoot(t *testing.T) {
	assertEqual(t, joinRoot("/ds", "sub/dir"), "/ds/sub/dir")
}
