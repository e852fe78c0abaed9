package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/dlctx"
	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// TaskStatus is one of the four terminal outcomes a transfer task reaches.
type TaskStatus string

const (
	StatusOK         TaskStatus = "ok"
	StatusNotNeeded  TaskStatus = "notneeded"
	StatusImpossible TaskStatus = "impossible"
	StatusError      TaskStatus = "error"
)

// Progress is one (task-id, bytes-done, bytes-total-or-unknown, label)
// report.
type Progress struct {
	TaskID     string
	BytesDone  int64
	BytesTotal int64 // -1 means unknown
	Label      string
}

// Task is one content-transfer unit: get or push a single key.
type Task struct {
	ID       string
	Key      string
	Dataset  string
	Resolve  func(ctx context.Context) ([]Candidate, error)
	Fetch    func(ctx context.Context, c Candidate, onProgress func(Progress)) error
}

// Result is a completed Task's outcome.
type Result struct {
	Task   Task
	Status TaskStatus
	Err    error
}

// Engine is a bounded worker pool with a producer-consumer queue of
// transfer tasks. Workers are OS threads; each worker owns one VCS or
// annex subprocess at a time.
type Engine struct {
	Ctx     *dlctx.Context
	Config  *config.Store
	Log     *logrus.Entry
	Bridge  *vcsbridge.Bridge

	sem       *semaphore.Weighted
	progress  cmap.ConcurrentMap // task id -> Progress
	retryMax  int
	graceWait time.Duration
}

// NewEngine constructs an Engine with jobs resolved from --jobs ∈ {N,
// 'auto'}. jobs<=0 means "auto", which clamps to min(8, max(3, ncpu)) for
// pure core-level parallelism.
func NewEngine(ctx *dlctx.Context, cfg *config.Store, bridge *vcsbridge.Bridge, log *logrus.Entry, jobs int) *Engine {
	if jobs <= 0 {
		jobs = autoJobs()
	}
	retryMax, _ := cfg.GetInt("datalad.annex.retry", 3)
	return &Engine{
		Ctx:       ctx,
		Config:    cfg,
		Log:       log,
		Bridge:    bridge,
		sem:       semaphore.NewWeighted(int64(jobs)),
		progress:  cmap.New(),
		retryMax:  retryMax,
		graceWait: 30 * time.Second,
	}
}

func autoJobs() int {
	n := 3
	if cpu := numCPU(); cpu > n {
		n = cpu
	}
	if n > 8 {
		n = 8
	}
	return n
}

// Run executes tasks through the bounded pool and returns their results in
// the order of tasks (results[i] belongs to tasks[i]). No ordering guarantee exists between tasks belonging to
// different files; within a single task, stages
// are sequenced by runTask.
func (e *Engine) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, t := range tasks {
		i, t := i, t
		if err := e.sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Task: t, Status: StatusError, Err: errs.Wrap(errs.Cancelled, err, "acquire worker slot for %s", t.ID)}
			recordResult(StatusError)
			continue
		}
		wg.Add(1)
		workersInFlight.Inc()
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)
			defer workersInFlight.Dec()
			r := e.runTask(ctx, t)
			results[i] = r
			recordResult(r.Status)
		}()
	}
	wg.Wait()
	return results
}

// runTask resolves the candidate sources for one task and fetches from each
// in turn until one succeeds, checking for cancellation before each
// candidate and retrying each fetch with bounded exponential backoff +
// jitter. It has no separate reserve, verify or commit stages.
func (e *Engine) runTask(ctx context.Context, t Task) Result {
	if e.Ctx.Cancelled() {
		return Result{Task: t, Status: StatusError, Err: errs.New(errs.Cancelled, "task %s cancelled before start", t.ID)}
	}

	candidates, err := t.Resolve(ctx)
	if err != nil {
		return Result{Task: t, Status: StatusError, Err: err}
	}
	if len(candidates) == 0 {
		return Result{Task: t, Status: StatusImpossible, Err: errs.New(errs.RemoteNotAvailable, "no candidate source for key %s", t.Key)}
	}

	onProgress := func(p Progress) {
		if prev, ok := e.progress.Get(p.TaskID); ok {
			recordProgress(p.BytesDone - prev.(Progress).BytesDone)
		} else {
			recordProgress(p.BytesDone)
		}
		e.progress.Set(p.TaskID, p)
	}

	var lastErr error
	for _, c := range candidates {
		if e.Ctx.Cancelled() {
			return Result{Task: t, Status: StatusError, Err: errs.New(errs.Cancelled, "task %s cancelled", t.ID)}
		}
		err := e.withRetry(ctx, t, func() error { return t.Fetch(ctx, c, onProgress) })
		if err == nil {
			return Result{Task: t, Status: StatusOK}
		}
		lastErr = err
		e.Log.WithError(err).WithField("task", t.ID).Warn("candidate source failed, trying next")
	}
	return Result{Task: t, Status: StatusError, Err: errs.Wrap(errs.Transfer, lastErr, "all candidate sources failed for key %s", t.Key)}
}

// withRetry caps retries at datalad.annex.retry (default 3) for get/copy
// only, using github.com/cenkalti/backoff/v4's bounded exponential backoff
// with jitter.
func (e *Engine) withRetry(ctx context.Context, t Task, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	retrier := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.retryMax)), ctx)

	return backoff.Retry(func() error {
		if e.Ctx.Cancelled() {
			return backoff.Permanent(errs.New(errs.Cancelled, "task %s cancelled mid-retry", t.ID))
		}
		err := fn()
		if err == nil {
			return nil
		}
		if errs.KindOf(err) == errs.IntegrityMismatch || errs.KindOf(err) == errs.Cancelled {
			return backoff.Permanent(err)
		}
		return err
	}, retrier)
}

// Cleanup shuts down the bridge's batched helpers. It does not remove
// partial downloads or release archive locks.
func (e *Engine) Cleanup() {
	e.Bridge.Shutdown()
}
