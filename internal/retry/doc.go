// Package retry runs operations again after transient failures, waiting an
// exponentially growing delay between attempts.
//
// Two classifiers are provided. PostgreSQLErrorClassifier recognizes
// connection-level and resource errors and is used when opening the pool.
// TaskClassifier decides whether a whole partition task may be re-run: a
// partition is re-executed from scratch after any failure except
// configuration and data-shape errors, which would fail identically again.
//
//	executor := retry.NewExecutor(retry.NewTaskClassifier(), retry.NewExponentialBackoff(3))
//	err := executor.Execute(ctx, func(ctx context.Context, attempt int) error {
//	    return upload(ctx, partition, attempt)
//	})
//
// Executor instances are safe for concurrent use. WithOnRetry returns an
// independent copy.
package retry
