package pgbulk

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer executes statements that return no rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier executes statements and single-row queries.
type Querier interface {
	Execer

	// QueryRow executes a query that is expected to return at most one row.
	// Always returns a non-nil RowScanner. Errors are deferred until Scan is called.
	QueryRow(ctx context.Context, sql string, args ...any) RowScanner
}

// DBConnection abstracts the database operations the coordinator needs.
// It decouples the load pipeline from pgx pool types so tests can substitute fakes.
//
// Thread-Safety: implementations backed by a connection pool are safe for concurrent use.
type DBConnection interface {
	Querier

	// Acquire takes a connection out of the pool for the exclusive use of one task.
	// The connection never goes back to the pool; the caller must Close it.
	Acquire(ctx context.Context) (DedicatedConnection, error)
}

// RowScanner represents a single row returned by QueryRow.
type RowScanner interface {
	// Scan reads the values from the row into dest values.
	Scan(dest ...any) error
}

// DedicatedConnection is a connection owned by exactly one partition task
// for the whole create/copy/close lifecycle.
type DedicatedConnection interface {
	Querier

	// CopyFrom streams r to the server using COPY ... FROM STDIN.
	// The returned CommandTag reports the number of rows copied.
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)

	// Close terminates the connection. After Close the connection must not be used.
	Close(ctx context.Context) error
}
