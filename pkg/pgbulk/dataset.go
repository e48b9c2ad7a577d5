package pgbulk

import "context"

// Row is an ordered sequence of values aligned with the schema's columns.
// A nil element is an absent (NULL) value.
type Row []any

// RowIterator is a single-pass cursor over one partition's rows.
//
// Usage:
//
//	for it.Next() {
//	    row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIterator interface {
	// Next advances to the next row and reports whether one is available.
	Next() bool

	// Row returns the current row. The slice may be reused by the next call to Next.
	Row() Row

	// Err returns the first error encountered while iterating.
	Err() error

	// Close releases resources held by the iterator.
	Close() error
}

// Dataset is a horizontally partitioned set of rows sharing one schema.
// Partitions are disjoint; their union is the whole dataset.
type Dataset interface {
	// Schema returns the ordered column list.
	Schema() Schema

	// NumPartitions returns the number of partitions.
	NumPartitions() int

	// OpenPartition opens a fresh iterator over partition i (0 <= i < NumPartitions()).
	// It is called once per task attempt; a partition is never resumed mid-stream.
	OpenPartition(ctx context.Context, i int) (RowIterator, error)
}
