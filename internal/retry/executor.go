package retry

import (
	"context"
	"time"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Operation is one attempt of a retried call. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Executor runs an Operation until it succeeds, fails fatally, or runs out of retries.
type Executor struct {
	classifier pgbulk.ErrorClassifier
	strategy   pgbulk.BackoffStrategy
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor creates a new retry executor.
// Panics if classifier or strategy is nil.
func NewExecutor(classifier pgbulk.ErrorClassifier, strategy pgbulk.BackoffStrategy) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}
	return &Executor{classifier: classifier, strategy: strategy}
}

// WithOnRetry returns a copy of the executor that calls callback before each
// retry with the number of the attempt that failed. The receiver is unchanged.
func (e *Executor) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// Execute runs op and returns the error of the last attempt.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	maxRetries := e.strategy.MaxAttempts()

	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if !e.classifier.IsTransient(err) {
			return err
		}

		retry := attempt - 1
		if maxRetries >= 0 && retry >= maxRetries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}

		delay := e.strategy.NextDelay(retry)
		if e.onRetry != nil {
			e.onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
