package pgbulk

import (
	"context"
	"time"
)

// Loader bulk-loads a dataset into a PostgreSQL table.
type Loader interface {
	// Load copies every partition of ds into cfg.Table.
	// In replace mode the target is swapped for a freshly loaded table only when
	// every partition succeeded; otherwise the target is left untouched.
	Load(ctx context.Context, ds Dataset, cfg LoadConfig) (*LoadResult, error)
}

// LoadResult summarizes a finished load.
type LoadResult struct {
	// Table is the fully qualified target table.
	Table string

	// StagingTable is the table partitions were written to in replace mode.
	// Empty in append mode and with transaction atomicity.
	StagingTable string

	Append    bool
	Atomicity Atomicity

	// Partitions is the number of partitions in the dataset.
	Partitions int

	// SuccessfulAttempts is the final value of the success counter.
	SuccessfulAttempts int64

	// Rows and Bytes total the successful attempts.
	Rows  int64
	Bytes int64

	// TableRows is the target's row count after the load.
	TableRows int64

	// Created reports that append mode found no target table and created it.
	Created bool

	Duration time.Duration

	// Summary is a one-line digest of per-partition upload latencies.
	Summary string
}

// Mode returns "append" or "replace".
func (r *LoadResult) Mode() string {
	if r.Append {
		return "append"
	}
	return "replace"
}
