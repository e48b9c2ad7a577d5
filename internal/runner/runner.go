// Package runner executes partition tasks with bounded parallelism and per-task retries.
package runner

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/internal/retry"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// TaskFunc runs one attempt of task index. attempt starts at 1.
type TaskFunc func(ctx context.Context, index, attempt int) error

// Config controls scheduling.
type Config struct {
	// Parallelism is the number of tasks running at once.
	Parallelism int

	// MaxAttempts is the number of times a task runs before it is given up.
	MaxAttempts int

	// RetryDelay is the backoff before the first retry; it doubles per retry.
	RetryDelay time.Duration

	// AttemptRate limits attempt starts per second across all tasks. Zero means unlimited.
	AttemptRate float64

	// Classifier decides which failures are retried. Defaults to retry.TaskClassifier.
	Classifier pgbulk.ErrorClassifier

	Logger pgbulk.Logger
}

// Runner runs a fixed set of tasks to completion.
type Runner struct {
	cfg      Config
	executor *retry.Executor
	limiter  *rate.Limiter
}

// New creates a Runner, applying defaults to unset fields.
func New(cfg Config) *Runner {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = pgbulk.DefaultParallelism
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = pgbulk.DefaultMaxTaskAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = pgbulk.DefaultTaskRetryDelay
	}
	if cfg.Classifier == nil {
		cfg.Classifier = retry.NewTaskClassifier()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNullLogger()
	}

	strategy := retry.NewExponentialBackoff(cfg.MaxAttempts-1, retry.WithInitialDelay(cfg.RetryDelay))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.AttemptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AttemptRate), 1)
	}

	return &Runner{
		cfg:      cfg,
		executor: retry.NewExecutor(cfg.Classifier, strategy),
		limiter:  limiter,
	}
}

// Run executes task for every index in [0, n) and waits for all of them.
// The first task to fail for good cancels the others; its error is returned.
func (r *Runner) Run(ctx context.Context, n int, task TaskFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)

	for i := 0; i < n; i++ {
		index := i
		executor := r.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			r.cfg.Logger.Info("partition %d attempt %d failed, retrying in %v: %v",
				index, attempt, delay.Round(time.Millisecond), err)
		})

		g.Go(func() error {
			err := executor.Execute(gctx, func(ctx context.Context, attempt int) error {
				if err := r.limiter.Wait(ctx); err != nil {
					return err
				}
				return task(ctx, index, attempt)
			})
			if err != nil {
				return fmt.Errorf("partition %d: %w: %w", index, pgbulk.ErrPartitionFailed, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// MaxAttempts returns the effective attempt limit.
func (r *Runner) MaxAttempts() int {
	return r.cfg.MaxAttempts
}
