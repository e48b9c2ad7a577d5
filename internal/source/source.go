// Package source provides datasets to load: in-memory partitions, and parquet
// or JSON-lines objects read from blob storage (file://, s3://, gs://).
//
// A key prefix is selected with the bucket URL's prefix parameter, e.g.
// s3://exports?region=eu-west-1&prefix=orders/2024/.
package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Dataset is a pgbulk.Dataset holding resources until closed.
type Dataset interface {
	pgbulk.Dataset
	io.Closer
}

// Options select and configure a blob dataset.
type Options struct {
	// Format is "parquet" or "jsonl".
	Format string

	// URL is the gocloud blob URL of the objects.
	URL string

	// Columns are "name:type" specs. Required for jsonl; parquet reads its
	// schema from the files and rejects Columns.
	Columns []string

	// Paths maps jsonl columns to gjson paths.
	Paths map[string]string
}

// Open opens the dataset described by opts.
func Open(ctx context.Context, opts Options) (Dataset, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("source URL is required: %w", pgbulk.ErrInvalidConfig)
	}
	switch strings.ToLower(opts.Format) {
	case "parquet":
		if len(opts.Columns) > 0 || len(opts.Paths) > 0 {
			return nil, fmt.Errorf("parquet sources take their columns from the files: %w", pgbulk.ErrInvalidConfig)
		}
		return OpenParquet(ctx, opts.URL)
	case "jsonl", "ndjson":
		schema, err := pgbulk.ParseColumns(opts.Columns)
		if err != nil {
			return nil, err
		}
		return OpenJSONL(ctx, opts.URL, schema, opts.Paths)
	case "":
		return nil, fmt.Errorf("source format is required: %w", pgbulk.ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("source format %q is not one of parquet, jsonl: %w", opts.Format, pgbulk.ErrInvalidConfig)
	}
}

var (
	_ Dataset = (*Memory)(nil)
	_ Dataset = (*Parquet)(nil)
	_ Dataset = (*JSONL)(nil)
)
