package pgbulk

import "context"

// Counter is the shared success counter of a load.
// It counts successful partition task attempts, not distinct partitions:
// a partition that succeeds, is re-run and succeeds again is counted twice.
type Counter interface {
	// Increment adds one. Safe for concurrent use by every task.
	Increment(ctx context.Context) error

	// Value returns the current count. The coordinator reads it once, after all tasks settle.
	Value(ctx context.Context) (int64, error)
}
