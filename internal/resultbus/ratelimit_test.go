package resultbus

import "testing"

func TestRateLimiterReplaysShortRun(t *testing.T) {
	var flushed []Record
	rl := newRateLimiter(func(r Record) { flushed = append(flushed, r) })

	for i := 0; i < 5; i++ {
		rl.Feed(Record{Action: "get", Status: StatusOK, Message: "tick"})
	}
	rl.Close()

	assertEqual(t, len(flushed), 5)
	for _, r := range flushed {
		assertEqual(t, r.Message, "tick")
	}
}

func TestRateLimiterSummarizesLongRun(t *testing.T) {
	var flushed []Record
	rl := newRateLimiter(func(r Record) { flushed = append(flushed, r) })

	for i := 0; i < 12; i++ {
		rl.Feed(Record{Action: "get", Status: StatusOK, Message: "tick"})
	}
	rl.Close()

	assertEqual(t, len(flushed), 1)
	assertEqual(t, flushed[0].Action, "get")
	assertEqual(t, flushed[0].Status, StatusOK)
	assertEqual(t, flushed[0].Message, "tick (and 11 more with the same action and status)")
}

func TestRateLimiterFlushesOnDissimilarRecord(t *testing.T) {
	var flushed []Record
	rl := newRateLimiter(func(r Record) { flushed = append(flushed, r) })

	for i := 0; i < 12; i++ {
		rl.Feed(Record{Action: "get", Status: StatusOK, Message: "tick"})
	}
	rl.Feed(Record{Action: "drop", Status: StatusOK, Message: "switched"})
	rl.Close()

	assertEqual(t, len(flushed), 2)
	assertEqual(t, flushed[0].Message, "tick (and 11 more with the same action and status)")
	assertEqual(t, flushed[1].Message, "switched")
}

func TestRateLimiterCloseOnEmptyRunIsNoop(t *testing.T) {
	called := false
	rl := newRateLimiter(func(r Record) { called = true })
	rl.Close()
	if called {
		t.Fatalf("expected Close on an empty rate limiter not to flush")
	}
}
