// Package dlctx holds the single top-level context object that every other
// package receives by explicit parameter rather than importing as a global.
// New returns a *Context callers thread through explicitly, rather than an
// init()/package-global pattern.
package dlctx

import (
	"os"
	"os/signal"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
)

// Context owns the process-wide singletons (credential cache, SSH socket
// directory, lock directory) plus the top-level logger,
// and is torn down deterministically via Close.
type Context struct {
	Log *logrus.Logger

	StartTime time.Time

	// CredentialCache is the process-wide credential cache. No lock with a
	// timeout is taken around it; access goes straight to the concurrent
	// map.
	CredentialCache cmap.ConcurrentMap

	// SocketDir is datalad.locations.sockets: where SSH ControlMaster
	// sockets live.
	SocketDir string

	// LockDir is datalad.locations.locks: the default directory for
	// advisory lock files when a dataset does not override it.
	LockDir string

	cancel     chan struct{}
	cancelOnce sync.Once
	sigCh      chan os.Signal
}

// New constructs a Context. socketDir and lockDir are typically rooted at a
// dataset's .vcs/ subtree; callers resolve them before calling New.
func New(socketDir, lockDir string) *Context {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	ctx := &Context{
		Log:             logger,
		StartTime:       time.Now(),
		CredentialCache: cmap.New(),
		SocketDir:       socketDir,
		LockDir:         lockDir,
		cancel:          make(chan struct{}),
		sigCh:           make(chan os.Signal, 1),
	}

	signal.Notify(ctx.sigCh, os.Interrupt)
	go func() {
		if _, ok := <-ctx.sigCh; ok {
			ctx.Cancel()
		}
	}()

	return ctx
}

// Done returns the single process-wide cancellation channel observed by
// every TransferEngine worker at stage boundaries.
func (ctx *Context) Done() <-chan struct{} { return ctx.cancel }

// Cancel trips the single cancellation signal exactly once; subsequent
// calls are no-ops.
func (ctx *Context) Cancel() {
	ctx.cancelOnce.Do(func() {
		close(ctx.cancel)
	})
}

// Cancelled reports whether Cancel has been observed.
func (ctx *Context) Cancelled() bool {
	select {
	case <-ctx.cancel:
		return true
	default:
		return false
	}
}

// Close tears down the signal watcher deterministically on process exit.
func (ctx *Context) Close() {
	signal.Stop(ctx.sigCh)
	close(ctx.sigCh)
}
