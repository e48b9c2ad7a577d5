package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"gocloud.dev/blob"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// readBatchSize is the number of rows read from a row group at a time.
const readBatchSize = 256

// julianUnixEpoch is the Julian day number of 1970-01-01, used by INT96 timestamps.
const julianUnixEpoch = 2440588

type rowGroupRef struct {
	object object
	index  int
}

type valueFunc func(parquet.Value) any

// Parquet is a dataset over every *.parquet object under a blob URL, with one
// partition per row group. All files must share the first file's schema.
// Only flat schemas are supported.
type Parquet struct {
	bucket  *blob.Bucket
	schema  pgbulk.Schema
	convert []valueFunc
	groups  []rowGroupRef
}

// OpenParquet lists the parquet objects under url and reads their footers.
func OpenParquet(ctx context.Context, url string) (*Parquet, error) {
	bucket, err := openBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	p, err := newParquet(ctx, bucket, url)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return p, nil
}

func newParquet(ctx context.Context, bucket *blob.Bucket, url string) (*Parquet, error) {
	objects, err := listObjects(ctx, bucket, ".parquet")
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("no parquet objects under %s: %w", url, pgbulk.ErrSourceFailed)
	}

	p := &Parquet{bucket: bucket}
	for i, obj := range objects {
		f, err := openParquetFile(ctx, bucket, obj)
		if err != nil {
			return nil, err
		}
		schema, convert, err := mapParquetSchema(f.Schema())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", obj.Key, err)
		}
		if i == 0 {
			p.schema, p.convert = schema, convert
		} else if err := sameSchema(p.schema, schema); err != nil {
			return nil, fmt.Errorf("%s: %w", obj.Key, err)
		}
		for rg := range f.RowGroups() {
			p.groups = append(p.groups, rowGroupRef{object: obj, index: rg})
		}
	}
	return p, nil
}

func openParquetFile(ctx context.Context, bucket *blob.Bucket, obj object) (*parquet.File, error) {
	r := &rangeReader{ctx: ctx, bucket: bucket, key: obj.Key, size: obj.Size}
	f, err := parquet.OpenFile(r, obj.Size, parquet.SkipPageIndex(true), parquet.SkipBloomFilters(true))
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w: %w", obj.Key, err, pgbulk.ErrSourceFailed)
	}
	return f, nil
}

func (p *Parquet) Schema() pgbulk.Schema { return p.schema }

func (p *Parquet) NumPartitions() int { return len(p.groups) }

// OpenPartition reopens the file footer on every call, so an attempt never
// shares reader state with an earlier one.
func (p *Parquet) OpenPartition(ctx context.Context, i int) (pgbulk.RowIterator, error) {
	if err := checkIndex(i, len(p.groups)); err != nil {
		return nil, err
	}
	ref := p.groups[i]
	f, err := openParquetFile(ctx, p.bucket, ref.object)
	if err != nil {
		return nil, err
	}
	groups := f.RowGroups()
	if ref.index >= len(groups) {
		return nil, fmt.Errorf("%s has %d row groups, expected more than %d: %w",
			ref.object.Key, len(groups), ref.index, pgbulk.ErrSourceFailed)
	}
	return &parquetIterator{
		rows:    groups[ref.index].Rows(),
		convert: p.convert,
		buf:     make([]parquet.Row, readBatchSize),
		row:     make(pgbulk.Row, len(p.convert)),
	}, nil
}

func (p *Parquet) Close() error {
	return p.bucket.Close()
}

type parquetIterator struct {
	rows    parquet.Rows
	convert []valueFunc
	buf     []parquet.Row
	n, pos  int
	eof     bool
	row     pgbulk.Row
	err     error
}

func (it *parquetIterator) Next() bool {
	for it.pos >= it.n {
		if it.eof || it.err != nil {
			return false
		}
		n, err := it.rows.ReadRows(it.buf)
		it.n, it.pos = n, 0
		if err == io.EOF {
			it.eof = true
		} else if err != nil {
			it.err = fmt.Errorf("read parquet rows: %w", err)
			return false
		}
	}

	for i := range it.row {
		it.row[i] = nil
	}
	for _, v := range it.buf[it.pos] {
		col := v.Column()
		if col < 0 || col >= len(it.row) || v.IsNull() {
			continue
		}
		it.row[col] = it.convert[col](v)
	}
	it.pos++
	return true
}

func (it *parquetIterator) Row() pgbulk.Row { return it.row }

func (it *parquetIterator) Err() error { return it.err }

func (it *parquetIterator) Close() error { return it.rows.Close() }

func mapParquetSchema(s *parquet.Schema) (pgbulk.Schema, []valueFunc, error) {
	var columns []pgbulk.Column
	var convert []valueFunc
	for _, f := range s.Fields() {
		if !f.Leaf() || f.Repeated() {
			return pgbulk.Schema{}, nil, fmt.Errorf("column %q: nested and repeated columns are not supported: %w",
				f.Name(), pgbulk.ErrSourceFailed)
		}
		t, fn, err := parquetColumn(f.Type())
		if err != nil {
			return pgbulk.Schema{}, nil, fmt.Errorf("column %q: %w", f.Name(), err)
		}
		columns = append(columns, pgbulk.Column{Name: f.Name(), Type: t, Nullable: f.Optional()})
		convert = append(convert, fn)
	}
	return pgbulk.NewSchema(columns...), convert, nil
}

// parquetColumn maps a physical type and its logical annotation to a column
// type and the conversion producing the value shape the serializer expects.
func parquetColumn(t parquet.Type) (pgbulk.ColumnType, valueFunc, error) {
	lt := t.LogicalType()
	if lt == nil {
		lt = &format.LogicalType{}
	}

	switch t.Kind() {
	case parquet.Boolean:
		return pgbulk.Boolean(), func(v parquet.Value) any { return v.Boolean() }, nil

	case parquet.Int32:
		switch {
		case lt.Date != nil:
			return pgbulk.Date(), func(v parquet.Value) any { return v.Int32() }, nil
		case lt.Decimal != nil:
			scale := lt.Decimal.Scale
			return decimalType(lt.Decimal), func(v parquet.Value) any {
				return numeric(big.NewInt(int64(v.Int32())), scale)
			}, nil
		case lt.Integer != nil && !lt.Integer.IsSigned && lt.Integer.BitWidth == 32:
			return pgbulk.Int64(), func(v parquet.Value) any { return int64(uint32(v.Int32())) }, nil
		case lt.Integer != nil && lt.Integer.IsSigned && lt.Integer.BitWidth == 8:
			return pgbulk.Int8(), func(v parquet.Value) any { return int8(v.Int32()) }, nil
		case lt.Integer != nil && lt.Integer.IsSigned && lt.Integer.BitWidth == 16:
			return pgbulk.Int16(), func(v parquet.Value) any { return int16(v.Int32()) }, nil
		}
		return pgbulk.Int32(), func(v parquet.Value) any { return v.Int32() }, nil

	case parquet.Int64:
		switch {
		case lt.Timestamp != nil:
			unit := lt.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				return pgbulk.Timestamp(), func(v parquet.Value) any { return v.Int64() * 1000 }, nil
			case unit.Nanos != nil:
				return pgbulk.Timestamp(), func(v parquet.Value) any { return v.Int64() / 1000 }, nil
			}
			return pgbulk.Timestamp(), func(v parquet.Value) any { return v.Int64() }, nil
		case lt.Decimal != nil:
			scale := lt.Decimal.Scale
			return decimalType(lt.Decimal), func(v parquet.Value) any {
				return numeric(big.NewInt(v.Int64()), scale)
			}, nil
		}
		return pgbulk.Int64(), func(v parquet.Value) any { return v.Int64() }, nil

	case parquet.Int96:
		return pgbulk.Timestamp(), func(v parquet.Value) any {
			i := v.Int96()
			nanos := int64(uint64(i[1])<<32 | uint64(i[0]))
			days := int64(i[2]) - julianUnixEpoch
			return days*86_400_000_000 + nanos/1000
		}, nil

	case parquet.Float:
		return pgbulk.Float32(), func(v parquet.Value) any { return v.Float() }, nil

	case parquet.Double:
		return pgbulk.Float64(), func(v parquet.Value) any { return v.Double() }, nil

	case parquet.ByteArray, parquet.FixedLenByteArray:
		switch {
		case lt.Decimal != nil:
			scale := lt.Decimal.Scale
			return decimalType(lt.Decimal), func(v parquet.Value) any {
				return numeric(twosComplement(v.ByteArray()), scale)
			}, nil
		case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil:
			return pgbulk.Text(), func(v parquet.Value) any { return string(v.ByteArray()) }, nil
		}
		return pgbulk.Binary(), func(v parquet.Value) any { return bytes.Clone(v.ByteArray()) }, nil
	}

	return pgbulk.ColumnType{}, nil, fmt.Errorf("unsupported parquet type %s: %w", t, pgbulk.ErrSourceFailed)
}

func decimalType(d *format.DecimalType) pgbulk.ColumnType {
	return pgbulk.Decimal(int(d.Precision), int(d.Scale))
}

func numeric(unscaled *big.Int, scale int32) pgtype.Numeric {
	return pgtype.Numeric{Int: unscaled, Exp: -scale, Valid: true}
}

// twosComplement decodes a big-endian two's complement integer.
func twosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b))*8))
	}
	return n
}

func sameSchema(want, got pgbulk.Schema) error {
	if want.Len() != got.Len() {
		return fmt.Errorf("has %d columns, first file has %d: %w", got.Len(), want.Len(), pgbulk.ErrSourceFailed)
	}
	for i, c := range got.Columns {
		w := want.Columns[i]
		if c.Name != w.Name || c.Type.String() != w.Type.String() {
			return fmt.Errorf("column %d is %s %s, first file has %s %s: %w",
				i, c.Name, c.Type, w.Name, w.Type, pgbulk.ErrSourceFailed)
		}
	}
	return nil
}
