// Package schedule runs interaction batches on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/simulator"
)

// Batcher runs a batch of interactions
type Batcher interface {
	RunBatch(ctx context.Context, n int, opts simulator.Options) (simulator.BatchResult, error)
}

// Stats counts what the runner did
type Stats struct {
	Ticks        int64
	Skipped      int64
	Interactions int64
	Failures     int64
}

// Runner triggers RunBatch on every tick of a cron spec. A tick that fires
// while the previous batch is still running is skipped.
type Runner struct {
	spec  string
	batch int
	sim   Batcher
	log   *logger.Logger

	cron *rcron.Cron
	job  rcron.Job

	mu     sync.Mutex
	runCtx context.Context

	ticks        atomic.Int64
	skipped      atomic.Int64
	interactions atomic.Int64
	failures     atomic.Int64
}

// New validates spec (five-field cron or a descriptor such as "@every 10m")
// and prepares a Runner.
func New(spec string, batch int, sim Batcher, log *logger.Logger) (*Runner, error) {
	if _, err := rcron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if batch <= 0 {
		batch = 1
	}
	r := &Runner{
		spec:  spec,
		batch: batch,
		sim:   sim,
		log:   log,
	}
	cl := cronLogger{r: r}
	r.cron = rcron.New(rcron.WithLogger(cl))
	r.job = rcron.NewChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)).Then(rcron.FuncJob(r.tick))
	return r, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running batch to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.runCtx = ctx
	r.mu.Unlock()

	if _, err := r.cron.AddJob(r.spec, r.job); err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}
	r.cron.Start()
	r.log.Info("scheduler started: %q, %d interactions per tick", r.spec, r.batch)

	<-ctx.Done()

	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		r.log.Warn("scheduler stop timed out waiting for the running batch")
	}
	r.log.Info("scheduler stopped after %d ticks", r.ticks.Load())
	return nil
}

// Stats returns the counters so far
func (r *Runner) Stats() Stats {
	return Stats{
		Ticks:        r.ticks.Load(),
		Skipped:      r.skipped.Load(),
		Interactions: r.interactions.Load(),
		Failures:     r.failures.Load(),
	}
}

func (r *Runner) runContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runCtx == nil {
		return context.Background()
	}
	return r.runCtx
}

func (r *Runner) tick() {
	ctx := r.runContext()
	if ctx.Err() != nil {
		return
	}
	n := r.ticks.Add(1)

	res, err := r.sim.RunBatch(ctx, r.batch, simulator.Options{})
	r.interactions.Add(int64(len(res.Reports)))
	r.failures.Add(int64(res.Failed))
	if err != nil {
		r.failures.Add(1)
		r.log.Error("tick %d: %v", n, err)
		return
	}
	r.log.Info("tick %d: %d interactions, %d failed", n, len(res.Reports), res.Failed)
}

// cronLogger adapts the component logger to the cron library and counts
// skipped ticks.
type cronLogger struct {
	r *Runner
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.r.skipped.Add(1)
		l.r.log.Warn("tick skipped: previous batch still running")
		return
	}
	l.r.log.Debug("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.r.log.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
