package vcsbridge

import (
	"bufio"
	"context"
	"os/exec"
	"reflect"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/datalad-core/datalad/internal/errs"
)

// helper is one long-running batched annex subprocess , e.g. `git annex find --batch` for rapid repeated
// key/content-info queries.
type helper struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      *bufio.Writer
	stdout     *bufio.Reader
	stdinPipe  interface{ Close() error }
	lastUsed   time.Time
	owner      uint64 // goroutine-local token of the request currently holding mu
	ownerMu    sync.Mutex
	crashed    bool
}

// helperPool manages the batched helpers for a single repository. When a
// new helper is needed and the pool already holds maxBatched (default 8),
// Query first reaps helpers idle longer than maxInactive (default 10
// minutes) and then starts the new helper regardless of the count.
type helperPool struct {
	bridge       *Bridge
	mu           sync.Mutex
	helpers      cmap.ConcurrentMap // command key -> *helper
	maxBatched   int
	maxInactive  time.Duration
	reqCounter   uint64
	activeOwners sync.Map // goroutine token currently blocked inside a helper -> command key
}

func newHelperPool(b *Bridge) *helperPool {
	return &helperPool{
		bridge:      b,
		helpers:     cmap.New(),
		maxBatched:  8,
		maxInactive: 10 * time.Minute,
	}
}

// SetLimits overrides the pool's maxBatched / maxInactive defaults. Nothing
// in this module calls it, so datalad.runtime.max-batched and
// datalad.runtime.max-inactive-age are not read.
func (p *helperPool) SetLimits(maxBatched int, maxInactiveSeconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maxBatched > 0 {
		p.maxBatched = maxBatched
	}
	if maxInactiveSeconds > 0 {
		p.maxInactive = time.Duration(maxInactiveSeconds) * time.Second
	}
}

// helperToken identifies the logical caller for deadlock detection: a
// request issued while that same caller already holds the helper must
// raise rather than hang. Go has no thread identity, so a token is
// threaded explicitly through context.
type helperToken struct{}

// WithHelperToken attaches a fresh reentrancy token to ctx; Query uses it to
// detect a caller re-entering the same helper it is already inside.
func WithHelperToken(ctx context.Context) context.Context {
	return context.WithValue(ctx, helperToken{}, new(int))
}

func tokenOf(ctx context.Context) interface{} {
	return ctx.Value(helperToken{})
}

// Query sends a single request line to the named batched helper command
// (spawned lazily on first use) and returns its single reply line,
// enforcing the per-helper mutex plus deadlock detection.
func (p *helperPool) Query(ctx context.Context, cmdKey string, spawn func() (*exec.Cmd, error), request string) (string, error) {
	tok := tokenOf(ctx)

	val, _ := p.helpers.Get(cmdKey)
	h, _ := val.(*helper)
	if h == nil {
		p.mu.Lock()
		val, ok := p.helpers.Get(cmdKey)
		if ok {
			h = val.(*helper)
		} else {
			if p.helpers.Count() >= p.maxBatched {
				p.reapIdleLocked()
			}
			h = &helper{}
			p.helpers.Set(cmdKey, h)
		}
		p.mu.Unlock()
	}

	if tok != nil {
		h.ownerMu.Lock()
		current := h.owner
		h.ownerMu.Unlock()
		if current != 0 && current == tokenHash(tok) {
			return "", errs.New(errs.Internal, "deadlock: caller already holds batched helper %q", cmdKey)
		}
	}

	h.mu.Lock()
	if tok != nil {
		h.ownerMu.Lock()
		h.owner = tokenHash(tok)
		h.ownerMu.Unlock()
	}
	defer func() {
		if tok != nil {
			h.ownerMu.Lock()
			h.owner = 0
			h.ownerMu.Unlock()
		}
		h.mu.Unlock()
	}()

	if h.crashed || h.cmd == nil {
		cmd, err := spawn()
		if err != nil {
			return "", errs.Wrap(errs.MissingExternalDependency, err, "spawn batched helper %q", cmdKey)
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return "", errs.Wrap(errs.Internal, err, "open stdin for batched helper %q", cmdKey)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return "", errs.Wrap(errs.Internal, err, "open stdout for batched helper %q", cmdKey)
		}
		if err := cmd.Start(); err != nil {
			return "", errs.Wrap(errs.MissingExternalDependency, err, "start batched helper %q", cmdKey)
		}
		h.cmd = cmd
		h.stdin = bufio.NewWriter(stdin)
		h.stdout = bufio.NewReaderSize(stdout, maxLineBuffer)
		h.stdinPipe = stdin
		h.crashed = false
	}

	h.lastUsed = time.Now()

	if _, err := h.stdin.WriteString(request + "\n"); err != nil {
		h.crashed = true
		return "", errs.Wrap(errs.Internal, err, "write to crashed batched helper %q", cmdKey)
	}
	if err := h.stdin.Flush(); err != nil {
		h.crashed = true
		return "", errs.Wrap(errs.Internal, err, "flush batched helper %q", cmdKey)
	}
	line, err := h.stdout.ReadString('\n')
	if err != nil {
		h.crashed = true
		return "", errs.Wrap(errs.Internal, err, "read from crashed batched helper %q", cmdKey)
	}
	return trimNL(line), nil
}

func trimNL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// tokenHash collapses a reentrancy token to a comparable uint64 using its
// full pointer value, not a truncated string rendering of it, so distinct
// concurrent callers never collide onto the same owner.
func tokenHash(tok interface{}) uint64 {
	return uint64(reflect.ValueOf(tok).Pointer())
}

// reapIdleLocked closes helpers idle longer than maxInactive; callers must
// hold p.mu.
func (p *helperPool) reapIdleLocked() {
	now := time.Now()
	for _, key := range p.helpers.Keys() {
		val, ok := p.helpers.Get(key)
		if !ok {
			continue
		}
		h := val.(*helper)
		h.mu.Lock()
		idle := h.cmd != nil && now.Sub(h.lastUsed) > p.maxInactive
		if idle {
			_ = h.stdinPipe.Close()
			_ = h.cmd.Wait()
			h.cmd = nil
		}
		h.mu.Unlock()
		if idle {
			p.helpers.Remove(key)
		}
	}
}

// Shutdown closes every batched helper, run at process exit.
func (p *helperPool) Shutdown() {
	for _, key := range p.helpers.Keys() {
		val, ok := p.helpers.Get(key)
		if !ok {
			continue
		}
		h := val.(*helper)
		h.mu.Lock()
		if h.cmd != nil {
			_ = h.stdinPipe.Close()
			_ = h.cmd.Wait()
			h.cmd = nil
		}
		h.mu.Unlock()
	}
	p.helpers.Clear()
}

// Shutdown tears down b's batched helper pool.
func (b *Bridge) Shutdown() {
	b.helperPool.Shutdown()
}

// FindKey resolves a working-tree path to its annex key via the batched
// `git annex find --batch --format='${key}'` helper.
func (b *Bridge) FindKey(ctx context.Context, relpath string) (string, error) {
	key, err := b.helperPool.Query(ctx, "find", func() (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, b.AnnexExe, "find", "--batch", "--format=${key}\\n")
		cmd.Dir = b.Root
		cmd.Env = baseEnv(b.Root, nil)
		return cmd, nil
	}, relpath)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errs.New(errs.InvalidArgument, "%s is not an annexed file", relpath)
	}
	return key, nil
}
