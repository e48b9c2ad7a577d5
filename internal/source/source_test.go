package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vvka-141/pgbulk/internal/copytext"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// readAll encodes every row of every partition as COPY text, one slice per partition.
func readAll(t *testing.T, ds pgbulk.Dataset) [][]string {
	t.Helper()
	enc, err := copytext.NewEncoder(ds.Schema().Types(), pgbulk.FormatOptions{
		Delimiter:       ',',
		DateFormat:      pgbulk.DefaultDateFormat,
		TimestampFormat: pgbulk.DefaultTimestampFormat,
		Location:        time.UTC,
	})
	require.NoError(t, err)

	var out [][]string
	for i := 0; i < ds.NumPartitions(); i++ {
		it, err := ds.OpenPartition(context.Background(), i)
		require.NoError(t, err)
		var lines []string
		for it.Next() {
			rec, err := enc.Encode(it.Row())
			require.NoError(t, err)
			lines = append(lines, string(rec))
		}
		require.NoError(t, it.Err())
		require.NoError(t, it.Close())
		out = append(out, lines)
	}
	return out
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestMemory(t *testing.T) {
	schema := pgbulk.NewSchema(pgbulk.Column{Name: "id", Type: pgbulk.Int64()})
	ds := NewMemory(schema, []pgbulk.Row{{int64(1)}, {int64(2)}}, nil, []pgbulk.Row{{nil}})

	assert.Equal(t, 3, ds.NumPartitions())
	assert.Equal(t, [][]string{{"1\n", "2\n"}, nil, {"NULL\n"}}, readAll(t, ds))

	_, err := ds.OpenPartition(context.Background(), 3)
	assert.ErrorIs(t, err, pgbulk.ErrSourceFailed)
	_, err = ds.OpenPartition(context.Background(), -1)
	assert.ErrorIs(t, err, pgbulk.ErrSourceFailed)
}

func TestMemory_StopsOnCancel(t *testing.T) {
	schema := pgbulk.NewSchema(pgbulk.Column{Name: "id", Type: pgbulk.Int64()})
	ds := NewMemory(schema, []pgbulk.Row{{int64(1)}, {int64(2)}})

	ctx, cancel := context.WithCancel(context.Background())
	it, err := ds.OpenPartition(ctx, 0)
	require.NoError(t, err)
	require.True(t, it.Next())
	cancel()

	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Options{Format: "parquet"})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)

	_, err = Open(ctx, Options{URL: "file:///tmp"})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)

	_, err = Open(ctx, Options{Format: "csv", URL: "file:///tmp"})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)

	_, err = Open(ctx, Options{Format: "parquet", URL: "file:///tmp", Columns: []string{"id:bigint"}})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)

	_, err = Open(ctx, Options{Format: "jsonl", URL: "file:///tmp", Columns: []string{"id"}})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
}

func TestJSONL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", []byte(strings.Join([]string{
		`{"id": 1, "user": {"name": "ann"}, "price": "12.50", "at": "2024-01-02T03:04:05Z"}`,
		``,
		`{"id": 2, "user": {"name": null}, "price": 3}`,
	}, "\n")))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	writeFile(t, dir, "b.jsonl.zst", enc.EncodeAll([]byte(`{"id": 3, "user": {"name": "bo,b"}}`+"\n"), nil))
	require.NoError(t, enc.Close())
	writeFile(t, dir, "notes.txt", []byte("not a partition"))

	ds, err := Open(context.Background(), Options{
		Format:  "jsonl",
		URL:     "file://" + dir,
		Columns: []string{"id:bigint!", "name:text", "price:decimal(10,2)", "at:timestamp"},
		Paths:   map[string]string{"name": "user.name"},
	})
	require.NoError(t, err)
	defer ds.Close()

	schema := ds.Schema()
	assert.Equal(t, []string{"id", "name", "price", "at"}, schema.Names())
	assert.False(t, schema.Columns[0].Nullable)
	require.Equal(t, 2, ds.NumPartitions())

	assert.Equal(t, [][]string{
		{"1,ann,12.50,2024-01-02 03:04:05\n", "2,NULL,3,NULL\n"},
		{"3,bo\\,b,NULL,NULL\n"},
	}, readAll(t, ds))
}

func TestJSONL_PartitionCanBeReopened(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ndjson", []byte(`{"id": 1}`+"\n"+`{"id": 2}`+"\n"))

	ds, err := OpenJSONL(context.Background(), "file://"+dir,
		pgbulk.NewSchema(pgbulk.Column{Name: "id", Type: pgbulk.Int32()}), nil)
	require.NoError(t, err)
	defer ds.Close()

	first := readAll(t, ds)
	second := readAll(t, ds)
	assert.Equal(t, [][]string{{"1\n", "2\n"}}, first)
	assert.Equal(t, first, second)
}

func TestJSONL_Errors(t *testing.T) {
	schema := pgbulk.NewSchema(pgbulk.Column{Name: "id", Type: pgbulk.Int16()})

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"type mismatch", `{"id": "seven"}`, pgbulk.ErrTypeMismatch},
		{"overflow", `{"id": 40000}`, pgbulk.ErrTypeMismatch},
		{"boolean for integer", `{"id": true}`, pgbulk.ErrTypeMismatch},
		{"invalid json", `{"id": `, pgbulk.ErrSourceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "a.jsonl", []byte(tt.content+"\n"))

			ds, err := OpenJSONL(context.Background(), "file://"+dir, schema, nil)
			require.NoError(t, err)
			defer ds.Close()

			it, err := ds.OpenPartition(context.Background(), 0)
			require.NoError(t, err)
			defer it.Close()

			assert.False(t, it.Next())
			assert.ErrorIs(t, it.Err(), tt.want)
			assert.Contains(t, it.Err().Error(), "a.jsonl line 1")
		})
	}
}

func TestJSONL_UnknownPathColumn(t *testing.T) {
	schema := pgbulk.NewSchema(pgbulk.Column{Name: "id", Type: pgbulk.Int64()})

	_, err := OpenJSONL(context.Background(), "file://"+t.TempDir(), schema, map[string]string{"nope": "x"})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
}

func TestJSONValue(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		json string
		typ  pgbulk.ColumnType
		want any
	}{
		{"missing", `{}`, pgbulk.Text(), nil},
		{"null", `{"v": null}`, pgbulk.Int64(), nil},
		{"object as text", `{"v": {"a": 1}}`, pgbulk.Text(), `{"a": 1}`},
		{"bool", `{"v": true}`, pgbulk.Boolean(), true},
		{"int8", `{"v": -5}`, pgbulk.Int8(), int8(-5)},
		{"int from string", `{"v": "42"}`, pgbulk.Int32(), int32(42)},
		{"float32", `{"v": 1.5}`, pgbulk.Float32(), float32(1.5)},
		{"float64", `{"v": 2.25}`, pgbulk.Float64(), 2.25},
		{"date string", `{"v": "2024-01-02"}`, pgbulk.Date(), day},
		{"date days", `{"v": 19724}`, pgbulk.Date(), int32(19724)},
		{"timestamp micros", `{"v": 1700000000000000}`, pgbulk.Timestamp(), int64(1700000000000000)},
		{"binary", `{"v": "aGk="}`, pgbulk.Binary(), []byte("hi")},
		{"user defined", `{"v": 7}`, pgbulk.UserDefined("qty", pgbulk.Int64()), int64(7)},
		{"other", `{"v": [1, 2]}`, pgbulk.Other(), `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jsonValue(gjson.Get(tt.json, "v"), tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type order struct {
	ID    int64     `parquet:"id"`
	Name  *string   `parquet:"name,optional"`
	Price float64   `parquet:"price"`
	Paid  bool      `parquet:"paid"`
	Day   int32     `parquet:"day,date"`
	At    time.Time `parquet:"at,timestamp(millisecond)"`
}

func writeParquet[T any](t *testing.T, path string, groups ...[]T) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := parquet.NewGenericWriter[T](f)
	for _, rows := range groups {
		_, err := w.Write(rows)
		require.NoError(t, err)
		require.NoError(t, w.Flush())
	}
	require.NoError(t, w.Close())
}

func TestParquet(t *testing.T) {
	dir := t.TempDir()
	ann := "ann"
	at := time.Date(2024, 1, 2, 3, 4, 5, 123_000_000, time.UTC)

	writeParquet(t, filepath.Join(dir, "part-0.parquet"),
		[]order{{ID: 1, Name: &ann, Price: 9.5, Paid: true, Day: 19724, At: at}},
		[]order{{ID: 2, Price: 0.25, Day: 19725, At: at.Add(time.Hour)}},
	)
	writeParquet(t, filepath.Join(dir, "part-1.parquet"),
		[]order{{ID: 3, Price: 1, Day: 0, At: time.Unix(0, 0).UTC()}},
	)
	writeFile(t, dir, "_SUCCESS", nil)

	ds, err := Open(context.Background(), Options{Format: "parquet", URL: "file://" + dir})
	require.NoError(t, err)
	defer ds.Close()

	schema := ds.Schema()
	assert.Equal(t, []string{"id", "name", "price", "paid", "day", "at"}, schema.Names())
	assert.Equal(t, []pgbulk.Kind{
		pgbulk.KindInt64, pgbulk.KindText, pgbulk.KindFloat64, pgbulk.KindBoolean, pgbulk.KindDate, pgbulk.KindTimestamp,
	}, kinds(schema))
	assert.True(t, schema.Columns[1].Nullable)
	assert.False(t, schema.Columns[0].Nullable)

	require.Equal(t, 3, ds.NumPartitions(), "one partition per row group")
	assert.Equal(t, [][]string{
		{"1,ann,9.5,true,2024-01-02,2024-01-02 03:04:05.123\n"},
		{"2,NULL,0.25,false,2024-01-03,2024-01-02 04:04:05.123\n"},
		{"3,NULL,1,false,1970-01-01,1970-01-01 00:00:00\n"},
	}, readAll(t, ds))
}

func TestParquet_SchemaMismatch(t *testing.T) {
	type other struct {
		ID string `parquet:"id"`
	}
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "a.parquet"), []order{{ID: 1}})
	writeParquet(t, filepath.Join(dir, "b.parquet"), []other{{ID: "x"}})

	_, err := OpenParquet(context.Background(), "file://"+dir)
	assert.ErrorIs(t, err, pgbulk.ErrSourceFailed)
	assert.Contains(t, err.Error(), "b.parquet")
}

func TestParquet_NoObjects(t *testing.T) {
	_, err := OpenParquet(context.Background(), "file://"+t.TempDir())
	assert.ErrorIs(t, err, pgbulk.ErrSourceFailed)
}

func TestTwosComplement(t *testing.T) {
	assert.Equal(t, int64(-123), twosComplement([]byte{0xff, 0x85}).Int64())
	assert.Equal(t, int64(1250), twosComplement([]byte{0x04, 0xe2}).Int64())
	assert.Equal(t, int64(0), twosComplement(nil).Int64())
}

func kinds(s pgbulk.Schema) []pgbulk.Kind {
	out := make([]pgbulk.Kind, s.Len())
	for i, c := range s.Columns {
		out[i] = c.Type.Kind
	}
	return out
}
