package vcsbridge

import (
	"strings"
	"testing"
)

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func TestChunkArgsSingleBatchWhenSmall(t *testing.T) {
	batches := ChunkArgs([]string{"status"}, []string{"a", "b", "c"})
	assertEqual(t, len(batches), 1)
	assertEqual(t, len(batches[0]), 4)
	assertEqual(t, batches[0][0], "status")
}

func TestChunkArgsSplitsOversizedArgv(t *testing.T) {
	variadic := make([]string, 140)
	arg := strings.Repeat("x", 1000)
	for i := range variadic {
		variadic[i] = arg
	}

	batches := ChunkArgs([]string{"cmd"}, variadic)
	assertEqual(t, len(batches), 2)
	assertEqual(t, len(batches[0]), 131) // 1 fixed + 130 variadic
	assertEqual(t, len(batches[1]), 11)  // 1 fixed + 10 variadic

	total := 0
	for _, b := range batches {
		assertEqual(t, b[0], "cmd")
		total += len(b) - 1
	}
	assertEqual(t, total, 140)
}

func TestChunkArgsEmptyVariadicStillProducesOneBatch(t *testing.T) {
	batches := ChunkArgs([]string{"commit", "-m", "msg"}, nil)
	assertEqual(t, len(batches), 1)
	assertEqual(t, len(batches[0]), 3)
}
