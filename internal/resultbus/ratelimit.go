package resultbus

import "fmt"

// rateLimitThreshold is the run length of consecutive "similar" records
// (same action and status) that collapses into a single summary line.
const rateLimitThreshold = 10

// rateLimiter buffers a run of similar records and either replays them
// individually (run too short) or emits one summary line (run long enough),
// summarizing repetitive progress rather than printing every tick.
type rateLimiter struct {
	run   []Record
	flush func(Record)
}

func newRateLimiter(flush func(Record)) *rateLimiter {
	return &rateLimiter{flush: flush}
}

// Feed adds r to the buffered run, flushing the prior run first if r breaks
// similarity with it.
func (rl *rateLimiter) Feed(r Record) {
	if len(rl.run) > 0 && !rl.run[len(rl.run)-1].similarTo(r) {
		rl.drain()
	}
	rl.run = append(rl.run, r)
}

// Close flushes any buffered run at stream end.
func (rl *rateLimiter) Close() {
	rl.drain()
}

func (rl *rateLimiter) drain() {
	if len(rl.run) == 0 {
		return
	}
	if len(rl.run) < rateLimitThreshold {
		for _, r := range rl.run {
			rl.flush(r)
		}
	} else {
		first := rl.run[0]
		summary := Record{
			Action: first.Action,
			Status: first.Status,
			Type:   first.Type,
			Message: fmt.Sprintf("%s (and %d more with the same action and status)", first.Rendered(), len(rl.run)-1),
		}
		rl.flush(summary)
	}
	rl.run = nil
}
