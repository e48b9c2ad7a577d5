package pgbulk

import "time"

// PartitionReport describes the end of one partition task attempt.
type PartitionReport struct {
	Index    int
	Attempt  int
	Rows     int64
	Bytes    int64
	Duration time.Duration
	Err      error
}

// LoadObserver receives progress events from a running load.
// Methods are called from task goroutines and must be safe for concurrent use.
type LoadObserver interface {
	LoadStarted(table string, partitions int)
	PartitionStarted(index, attempt int)
	PartitionFinished(report PartitionReport)
	LoadFinished(result *LoadResult, err error)
}
