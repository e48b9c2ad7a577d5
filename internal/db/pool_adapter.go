package db

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// PoolAdapter adapts *pgxpool.Pool to pgbulk.DBConnection.
//
// Thread-Safety: Safe for concurrent use (pgxpool.Pool is thread-safe).
type PoolAdapter struct {
	pool *pgxpool.Pool
}

// NewPoolAdapter wraps pool.
func NewPoolAdapter(pool *pgxpool.Pool) pgbulk.DBConnection {
	return &PoolAdapter{pool: pool}
}

func (p *PoolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p *PoolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgbulk.RowScanner {
	return p.pool.QueryRow(ctx, sql, args...)
}

// Acquire takes a connection out of the pool for good. A failed COPY can
// leave a connection in an unknown protocol state, so task connections are
// closed rather than released; the pool opens a replacement on demand.
func (p *PoolAdapter) Acquire(ctx context.Context) (pgbulk.DedicatedConnection, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &taskConn{conn: conn.Hijack()}, nil
}

// taskConn is a hijacked connection owned by one partition attempt.
type taskConn struct {
	conn *pgx.Conn
}

func (c *taskConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c *taskConn) QueryRow(ctx context.Context, sql string, args ...any) pgbulk.RowScanner {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c *taskConn) CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	return c.conn.PgConn().CopyFrom(ctx, r, sql)
}

func (c *taskConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

var (
	_ pgbulk.DBConnection        = (*PoolAdapter)(nil)
	_ pgbulk.DedicatedConnection = (*taskConn)(nil)
)
