package source

import (
	"context"
	"fmt"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Memory is a dataset held in process memory.
type Memory struct {
	schema     pgbulk.Schema
	partitions [][]pgbulk.Row
}

// NewMemory returns a dataset with the given partitions. Rows are not copied.
func NewMemory(schema pgbulk.Schema, partitions ...[]pgbulk.Row) *Memory {
	return &Memory{schema: schema, partitions: partitions}
}

func (m *Memory) Schema() pgbulk.Schema { return m.schema }

func (m *Memory) NumPartitions() int { return len(m.partitions) }

func (m *Memory) OpenPartition(ctx context.Context, i int) (pgbulk.RowIterator, error) {
	if err := checkIndex(i, len(m.partitions)); err != nil {
		return nil, err
	}
	return &sliceIterator{ctx: ctx, rows: m.partitions[i]}, nil
}

func (m *Memory) Close() error { return nil }

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("partition %d out of range [0, %d): %w", i, n, pgbulk.ErrSourceFailed)
	}
	return nil
}

type sliceIterator struct {
	ctx  context.Context
	rows []pgbulk.Row
	pos  int
	err  error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.rows) {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() pgbulk.Row { return it.rows[it.pos-1] }

func (it *sliceIterator) Err() error { return it.err }

func (it *sliceIterator) Close() error { return nil }
