package resultbus

import (
	"io"
	"sync"

	"github.com/datalad-core/datalad/internal/errs"
)

// OnFailure is the standard continue/stop/ignore policy.
type OnFailure string

const (
	OnFailureStop     OnFailure = "stop"
	OnFailureContinue OnFailure = "continue"
	OnFailureIgnore   OnFailure = "ignore"
)

// busChanSize bounds the channel worker goroutines emit records into; the
// bus itself is single-threaded at the point records are rendered.
const busChanSize = 256

// Bus serializes Result Records from possibly many worker goroutines to one
// render point, applying filters, rate-limiting, hooks, and on_failure.
type Bus struct {
	Command   string
	Out       io.Writer
	Filter    Filter
	OnFailure OnFailure
	Hooks     []Hook
	// HookDispatch executes a rendered hook action command line; nil means
	// hooks are evaluated for matching but never dispatched (e.g. in tests).
	HookDispatch func(commandLine string)

	ch        chan Record
	wg        sync.WaitGroup
	mu        sync.Mutex
	errSeen   bool
	stopped   bool
	stopErr   error
}

// NewBus constructs a Bus and starts its single consumer goroutine.
func NewBus(command string, out io.Writer, filter Filter, onFailure OnFailure) *Bus {
	if onFailure == "" {
		onFailure = OnFailureContinue
	}
	b := &Bus{Command: command, Out: out, Filter: filter, OnFailure: onFailure, ch: make(chan Record, busChanSize)}
	b.wg.Add(1)
	go b.consume()
	return b
}

// Emit sends r into the bus from any goroutine; it blocks only if the
// channel is full. Once an on_failure=stop error has been seen, later
// records are discarded.
func (b *Bus) Emit(r Record) {
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return
	}
	b.ch <- r
}

// Close signals no more records are coming and waits for the consumer to
// drain, returning the accumulated stop error (set when on_failure=stop
// observed an error record), if any.
func (b *Bus) Close() error {
	close(b.ch)
	b.wg.Wait()
	return b.stopErr
}

func (b *Bus) consume() {
	defer b.wg.Done()
	renderer := RendererFor(b.Command)
	limiter := newRateLimiter(func(r Record) { renderer(b.Out, r) })
	defer limiter.Close()

	for r := range b.ch {
		if r.Status == StatusError {
			b.mu.Lock()
			b.errSeen = true
			b.mu.Unlock()
		}
		b.runHooks(r)

		if b.OnFailure == OnFailureIgnore {
			continue
		}
		if !b.Filter.Match(r) {
			continue
		}
		limiter.Feed(r)

		if r.Status == StatusError && b.OnFailure == OnFailureStop {
			b.mu.Lock()
			b.stopped = true
			b.stopErr = errs.Wrap(errs.Conflict, r.Exception, "stopping after error result for %s", r.Path)
			b.mu.Unlock()
		}
	}
}

// ErrorSeen reports whether any error-status record has passed through the
// bus, for the CLI's exit code mapping.
func (b *Bus) ErrorSeen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errSeen
}

// ExitCode maps ErrorSeen into the process exit code contract, distinct
// from any child process's own exit code.
func (b *Bus) ExitCode() int {
	if b.ErrorSeen() {
		return 1
	}
	return 0
}
