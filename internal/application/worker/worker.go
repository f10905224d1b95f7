package worker

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one unit of periodic work, such as a batch run over all tenants.
type Job interface {
	RunOnce(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc func(ctx context.Context) error

func (f JobFunc) RunOnce(ctx context.Context) error { return f(ctx) }

// Scheduler triggers a Job on a fixed interval.
type Scheduler struct {
	job              Job
	interval         time.Duration
	maxStartupJitter time.Duration
	runTimeout       time.Duration
	running          atomic.Bool
	wg               sync.WaitGroup
}

// Option is a functional option for configuring Scheduler.
type Option func(*Scheduler)

// WithInterval sets how often the job runs.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithMaxStartupJitter delays the first run by a random duration up to d.
// Spreads load when several workers restart together.
func WithMaxStartupJitter(d time.Duration) Option {
	return func(s *Scheduler) {
		s.maxStartupJitter = d
	}
}

// WithRunTimeout bounds a single run. Zero means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.runTimeout = d
	}
}

// NewScheduler creates a Scheduler with the given job and options.
func NewScheduler(job Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		job:      job,
		interval: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run executes the job once after the startup jitter, then on every tick,
// until ctx is cancelled. A tick that fires while the previous run is still
// in flight is skipped. On shutdown:
// 1. Stops starting new runs
// 2. Waits for the in-flight run to complete
// 3. Returns nil
func (s *Scheduler) Run(ctx context.Context) error {
	if s.maxStartupJitter > 0 {
		jitter := rand.N(s.maxStartupJitter)
		slog.InfoContext(ctx, "scheduler starting",
			"startup_jitter", jitter,
			"interval", s.interval)

		timer := time.NewTimer(jitter)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else {
		slog.InfoContext(ctx, "scheduler starting", "interval", s.interval)
	}

	s.trigger(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.trigger(ctx)
		case <-ctx.Done():
			slog.InfoContext(ctx, "shutdown requested, waiting for in-flight run")
			s.wg.Wait()
			slog.InfoContext(ctx, "scheduler stopped gracefully")
			return nil
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		slog.WarnContext(ctx, "previous run still in progress, skipping tick")
		return
	}

	s.wg.Go(func() {
		defer s.running.Store(false)

		// Detached from ctx so shutdown lets the current run finish.
		runCtx := context.WithoutCancel(ctx)
		if s.runTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.runTimeout)
			defer cancel()
		}

		if err := s.job.RunOnce(runCtx); err != nil {
			slog.ErrorContext(runCtx, "scheduled run failed", "error", err)
		}
	})
}
