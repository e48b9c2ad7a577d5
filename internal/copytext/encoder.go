package copytext

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Encoder turns rows into COPY text records for a fixed column list.
// An Encoder is immutable and safe for concurrent use.
type Encoder struct {
	types []pgbulk.ColumnType
	opts  pgbulk.FormatOptions
}

// NewEncoder validates the delimiter and returns an Encoder for the given columns.
// An invalid delimiter is reported here, before any row is encoded.
func NewEncoder(types []pgbulk.ColumnType, opts pgbulk.FormatOptions) (*Encoder, error) {
	if _, err := pgbulk.ParseDelimiter(string(opts.Delimiter)); err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Encoder{types: append([]pgbulk.ColumnType(nil), types...), opts: opts}, nil
}

// Encode returns the record for row, newline included.
func (e *Encoder) Encode(row pgbulk.Row) ([]byte, error) {
	return e.AppendRecord(nil, row)
}

// AppendRecord appends the record for row to dst.
// On error dst is returned unchanged.
func (e *Encoder) AppendRecord(dst []byte, row pgbulk.Row) ([]byte, error) {
	if len(row) != len(e.types) {
		return dst, fmt.Errorf("got %d values for %d columns: %w", len(row), len(e.types), pgbulk.ErrRowWidth)
	}
	start := len(dst)
	for i, v := range row {
		if i > 0 {
			dst = append(dst, byte(e.opts.Delimiter))
		}
		if isAbsent(v) {
			dst = append(dst, pgbulk.NullToken...)
			continue
		}
		s, err := Serialize(v, e.types[i], e.opts)
		if err != nil {
			return dst[:start], fmt.Errorf("column %d: %w", i, err)
		}
		dst = AppendEscaped(dst, s, e.opts.Delimiter)
	}
	return append(dst, '\n'), nil
}

// Delimiter returns the field delimiter.
func (e *Encoder) Delimiter() rune {
	return e.opts.Delimiter
}

func isAbsent(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case pgtype.Numeric:
		return !n.Valid
	case *pgtype.Numeric:
		return n == nil || !n.Valid
	case []byte:
		return n == nil
	}
	return false
}

// WriteStats counts what WritePartition wrote.
type WriteStats struct {
	Rows  int64
	Bytes int64
}

// WritePartition drains it into w, one record per row in iteration order.
// It does not close the iterator.
func WritePartition(w io.Writer, enc *Encoder, it pgbulk.RowIterator) (WriteStats, error) {
	var stats WriteStats
	bw := bufio.NewWriterSize(w, 64*1024)
	buf := make([]byte, 0, 512)

	for it.Next() {
		var err error
		buf, err = enc.AppendRecord(buf[:0], it.Row())
		if err != nil {
			return stats, fmt.Errorf("row %d: %w", stats.Rows, err)
		}
		n, err := bw.Write(buf)
		stats.Bytes += int64(n)
		if err != nil {
			return stats, err
		}
		stats.Rows++
	}
	if err := it.Err(); err != nil {
		return stats, fmt.Errorf("reading row %d: %w: %w", stats.Rows, err, pgbulk.ErrSourceFailed)
	}
	return stats, bw.Flush()
}
