package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"
	"gocloud.dev/blob"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// maxLineSize bounds a single JSON line.
const maxLineSize = 64 << 20

var jsonlSuffixes = []string{".jsonl", ".ndjson", ".jsonl.zst", ".ndjson.zst"}

// JSONL is a dataset over every JSON-lines object under a blob URL, with one
// partition per object. Objects ending in .zst are zstd-compressed.
//
// Each column is read from the gjson path given in paths, or from the column
// name when it has no entry. Missing and null values are absent.
type JSONL struct {
	bucket  *blob.Bucket
	schema  pgbulk.Schema
	paths   []string
	objects []object
}

// OpenJSONL lists the JSON-lines objects under url.
func OpenJSONL(ctx context.Context, url string, schema pgbulk.Schema, paths map[string]string) (*JSONL, error) {
	if schema.Len() == 0 {
		return nil, fmt.Errorf("jsonl source requires columns: %w", pgbulk.ErrInvalidConfig)
	}
	for name := range paths {
		if !hasColumn(schema, name) {
			return nil, fmt.Errorf("path given for unknown column %q: %w", name, pgbulk.ErrInvalidConfig)
		}
	}

	bucket, err := openBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	objects, err := listObjects(ctx, bucket, jsonlSuffixes...)
	if err != nil {
		bucket.Close()
		return nil, err
	}

	resolved := make([]string, schema.Len())
	for i, c := range schema.Columns {
		resolved[i] = c.Name
		if p, ok := paths[c.Name]; ok && p != "" {
			resolved[i] = p
		}
	}
	return &JSONL{bucket: bucket, schema: schema, paths: resolved, objects: objects}, nil
}

func hasColumn(schema pgbulk.Schema, name string) bool {
	for _, c := range schema.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (j *JSONL) Schema() pgbulk.Schema { return j.schema }

func (j *JSONL) NumPartitions() int { return len(j.objects) }

func (j *JSONL) OpenPartition(ctx context.Context, i int) (pgbulk.RowIterator, error) {
	if err := checkIndex(i, len(j.objects)); err != nil {
		return nil, err
	}
	key := j.objects[i].Key

	r, err := j.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w: %w", key, err, pgbulk.ErrSourceFailed)
	}
	it := &jsonlIterator{
		key:    key,
		closer: r,
		types:  j.schema.Types(),
		paths:  j.paths,
		row:    make(pgbulk.Row, j.schema.Len()),
	}

	var body io.Reader = r
	if strings.HasSuffix(strings.ToLower(key), ".zst") {
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create zstd decoder for %s: %w: %w", key, err, pgbulk.ErrSourceFailed)
		}
		it.decoder = dec
		body = dec
	}

	it.scanner = bufio.NewScanner(body)
	it.scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return it, nil
}

func (j *JSONL) Close() error {
	return j.bucket.Close()
}

type jsonlIterator struct {
	key     string
	closer  io.Closer
	decoder *zstd.Decoder
	scanner *bufio.Scanner
	types   []pgbulk.ColumnType
	paths   []string
	row     pgbulk.Row
	line    int
	err     error
}

func (it *jsonlIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.scanner.Scan() {
		it.line++
		line := bytes.TrimSpace(it.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			it.err = fmt.Errorf("%s line %d: invalid JSON: %w", it.key, it.line, pgbulk.ErrSourceFailed)
			return false
		}
		for i, path := range it.paths {
			v, err := jsonValue(gjson.GetBytes(line, path), it.types[i])
			if err != nil {
				it.err = fmt.Errorf("%s line %d: column %d (%s): %w", it.key, it.line, i, path, err)
				return false
			}
			it.row[i] = v
		}
		return true
	}
	if err := it.scanner.Err(); err != nil {
		it.err = fmt.Errorf("read %s: %w", it.key, err)
	}
	return false
}

func (it *jsonlIterator) Row() pgbulk.Row { return it.row }

func (it *jsonlIterator) Err() error { return it.err }

func (it *jsonlIterator) Close() error {
	if it.decoder != nil {
		it.decoder.Close()
	}
	return it.closer.Close()
}

// jsonValue converts a JSON value to the Go shape the serializer expects for t.
// Numbers may also be given as strings.
func jsonValue(r gjson.Result, t pgbulk.ColumnType) (any, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}

	mismatch := func() error {
		return fmt.Errorf("%s column cannot hold JSON %s %s: %w", t, r.Type, truncate(r.Raw), pgbulk.ErrTypeMismatch)
	}

	switch t.Kind {
	case pgbulk.KindText:
		if r.Type == gjson.String {
			return r.Str, nil
		}
		return r.Raw, nil

	case pgbulk.KindBoolean:
		if r.Type == gjson.True || r.Type == gjson.False {
			return r.Bool(), nil
		}
		return nil, mismatch()

	case pgbulk.KindInt8, pgbulk.KindInt16, pgbulk.KindInt32, pgbulk.KindInt64:
		if r.Type != gjson.Number && r.Type != gjson.String {
			return nil, mismatch()
		}
		bits := map[pgbulk.Kind]int{pgbulk.KindInt8: 8, pgbulk.KindInt16: 16, pgbulk.KindInt32: 32, pgbulk.KindInt64: 64}[t.Kind]
		n, err := strconv.ParseInt(numberText(r), 10, bits)
		if err != nil {
			return nil, mismatch()
		}
		switch t.Kind {
		case pgbulk.KindInt8:
			return int8(n), nil
		case pgbulk.KindInt16:
			return int16(n), nil
		case pgbulk.KindInt32:
			return int32(n), nil
		}
		return n, nil

	case pgbulk.KindFloat32, pgbulk.KindFloat64:
		if r.Type != gjson.Number && r.Type != gjson.String {
			return nil, mismatch()
		}
		f, err := strconv.ParseFloat(numberText(r), 64)
		if err != nil && !isRangeError(err) {
			return nil, mismatch()
		}
		if t.Kind == pgbulk.KindFloat32 {
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return nil, mismatch()
			}
			return float32(f), nil
		}
		return f, nil

	case pgbulk.KindDecimal:
		if r.Type != gjson.Number && r.Type != gjson.String {
			return nil, mismatch()
		}
		var n pgtype.Numeric
		if err := n.Scan(numberText(r)); err != nil || !n.Valid {
			return nil, mismatch()
		}
		return n, nil

	case pgbulk.KindDate:
		switch r.Type {
		case gjson.Number:
			return int32(r.Int()), nil
		case gjson.String:
			d, err := time.Parse(time.DateOnly, r.Str)
			if err != nil {
				return nil, mismatch()
			}
			return d, nil
		}
		return nil, mismatch()

	case pgbulk.KindTimestamp:
		switch r.Type {
		case gjson.Number:
			return r.Int(), nil
		case gjson.String:
			ts, err := time.Parse(time.RFC3339Nano, r.Str)
			if err != nil {
				return nil, mismatch()
			}
			return ts, nil
		}
		return nil, mismatch()

	case pgbulk.KindBinary:
		if r.Type != gjson.String {
			return nil, mismatch()
		}
		b, err := base64.StdEncoding.DecodeString(r.Str)
		if err != nil {
			return nil, mismatch()
		}
		return b, nil

	case pgbulk.KindUserDefined:
		if t.Inner != nil {
			return jsonValue(r, *t.Inner)
		}
	}

	if r.Type == gjson.String {
		return r.Str, nil
	}
	return r.Raw, nil
}

// numberText returns the literal text of a number, or the trimmed string content.
func numberText(r gjson.Result) string {
	if r.Type == gjson.Number {
		return r.Raw
	}
	return strings.TrimSpace(r.Str)
}

func isRangeError(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func truncate(s string) string {
	const limit = 40
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
