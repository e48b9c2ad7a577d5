package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/pgbulk/internal/counter"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// fakeDB keeps tables as lists of COPY records keyed by quoted name.
type fakeDB struct {
	mu         sync.Mutex
	rows       map[string][]string
	statements []string
	isolation  string
	acquireErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string][]string), isolation: "read committed"}
}

func (d *fakeDB) seed(table pgbulk.TableName, records ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[table.Quoted()] = append([]string{}, records...)
}

func (d *fakeDB) table(table pgbulk.TableName) ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, ok := d.rows[table.Quoted()]
	return append([]string(nil), rows...), ok
}

func (d *fakeDB) tableNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.rows))
	for name := range d.rows {
		names = append(names, name)
	}
	return names
}

func (d *fakeDB) executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statements...)
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statements = append(d.statements, sql)
	return pgconn.CommandTag{}, nil
}

func (d *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgbulk.RowScanner {
	if strings.HasPrefix(sql, "SHOW default_transaction_isolation") {
		return stringRow{value: d.isolation}
	}
	return stringRow{err: fmt.Errorf("unexpected query %q", sql)}
}

func (d *fakeDB) Acquire(context.Context) (pgbulk.DedicatedConnection, error) {
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return &fakeTaskConn{db: d}, nil
}

type stringRow struct {
	value string
	err   error
}

func (r stringRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.value
	return nil
}

type fakeTaskConn struct {
	db     *fakeDB
	closed bool
}

func (c *fakeTaskConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.db.Exec(ctx, sql, args...)
}

func (c *fakeTaskConn) QueryRow(ctx context.Context, sql string, args ...any) pgbulk.RowScanner {
	return c.db.QueryRow(ctx, sql, args...)
}

// CopyFrom appends the stream's records to the table named after COPY.
func (c *fakeTaskConn) CopyFrom(_ context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	fields := strings.Fields(sql)
	if len(fields) < 2 || fields[0] != "COPY" {
		return pgconn.CommandTag{}, fmt.Errorf("unexpected copy statement %q", sql)
	}
	table := fields[1]

	var records []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		records = append(records, sc.Text())
	}

	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	existing, ok := c.db.rows[table]
	if !ok {
		return pgconn.CommandTag{}, fmt.Errorf("relation %s does not exist", table)
	}
	c.db.rows[table] = append(existing, records...)
	return pgconn.NewCommandTag("COPY " + strconv.Itoa(len(records))), nil
}

func (c *fakeTaskConn) Close(context.Context) error {
	c.closed = true
	return nil
}

// mockTables implements pgbulk.TableManager on top of a fakeDB.
type mockTables struct {
	db *fakeDB

	mu         sync.Mutex
	created    []string
	dropped    []string
	promoted   []string
	promoteErr error
	dropErr    error
	listResult []pgbulk.TableName
	listErr    error
	existsErr  error
	countErr   error
}

func (m *mockTables) record(list *[]string, entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*list = append(*list, entry)
}

func (m *mockTables) calls(list *[]string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), (*list)...)
}

func (m *mockTables) Exists(_ context.Context, _ pgbulk.Querier, table pgbulk.TableName) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.db.table(table)
	return ok, nil
}

func (m *mockTables) Create(_ context.Context, _ pgbulk.Execer, table pgbulk.TableName, _, _ string) error {
	m.record(&m.created, table.String())
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.rows[table.Quoted()]; !ok {
		m.db.rows[table.Quoted()] = []string{}
	}
	return nil
}

func (m *mockTables) Drop(_ context.Context, _ pgbulk.Execer, table pgbulk.TableName) error {
	m.record(&m.dropped, table.String())
	if m.dropErr != nil {
		return m.dropErr
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.rows, table.Quoted())
	return nil
}

func (m *mockTables) Promote(_ context.Context, _ pgbulk.DBConnection, staging, target pgbulk.TableName) error {
	m.record(&m.promoted, staging.String()+" -> "+target.String())
	if m.promoteErr != nil {
		return m.promoteErr
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	rows, ok := m.db.rows[staging.Quoted()]
	if !ok {
		return fmt.Errorf("relation %s does not exist", staging.Quoted())
	}
	m.db.rows[target.Quoted()] = rows
	delete(m.db.rows, staging.Quoted())
	return nil
}

func (m *mockTables) RowCount(_ context.Context, _ pgbulk.Querier, table pgbulk.TableName) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	rows, _ := m.db.table(table)
	return int64(len(rows)), nil
}

func (m *mockTables) ListStaging(context.Context, pgbulk.DBConnection, pgbulk.TableName) ([]pgbulk.TableName, error) {
	return m.listResult, m.listErr
}

// partitionedDataset serves fixed partitions. OpenPartition fails the first
// failFirst[i] attempts at partition i.
type partitionedDataset struct {
	schema     pgbulk.Schema
	partitions [][]pgbulk.Row
	failFirst  map[int]int

	mu       sync.Mutex
	attempts map[int]int
}

func newDataset(partitions [][]pgbulk.Row) *partitionedDataset {
	return &partitionedDataset{
		schema: pgbulk.NewSchema(
			pgbulk.Column{Name: "id", Type: pgbulk.Int64()},
			pgbulk.Column{Name: "name", Type: pgbulk.Text(), Nullable: true},
		),
		partitions: partitions,
		failFirst:  make(map[int]int),
		attempts:   make(map[int]int),
	}
}

func (d *partitionedDataset) Schema() pgbulk.Schema { return d.schema }
func (d *partitionedDataset) NumPartitions() int    { return len(d.partitions) }

func (d *partitionedDataset) OpenPartition(_ context.Context, i int) (pgbulk.RowIterator, error) {
	d.mu.Lock()
	d.attempts[i]++
	n := d.attempts[i]
	d.mu.Unlock()
	if n <= d.failFirst[i] {
		return nil, errors.New("object store timeout")
	}
	return &sliceIter{rows: d.partitions[i]}, nil
}

func (d *partitionedDataset) attemptsOf(i int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[i]
}

type sliceIter struct {
	rows []pgbulk.Row
	pos  int
}

func (it *sliceIter) Next() bool {
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}
func (it *sliceIter) Row() pgbulk.Row { return it.rows[it.pos-1] }
func (it *sliceIter) Err() error      { return nil }
func (it *sliceIter) Close() error    { return nil }

// skewedCounter reports its value off by skew.
type skewedCounter struct {
	*counter.Local
	skew int64
}

func (c *skewedCounter) Value(ctx context.Context) (int64, error) {
	n, err := c.Local.Value(ctx)
	return n + c.skew, err
}

type recordingObserver struct {
	mu        sync.Mutex
	started   int
	attempts  int
	finished  []pgbulk.PartitionReport
	result    *pgbulk.LoadResult
	resultErr error
	done      int
}

func (o *recordingObserver) LoadStarted(string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) PartitionStarted(int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *recordingObserver) PartitionFinished(r pgbulk.PartitionReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func (o *recordingObserver) LoadFinished(res *pgbulk.LoadResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done++
	o.result = res
	o.resultErr = err
}
