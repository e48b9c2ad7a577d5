package uploader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// PartitionWriter streams a COPY text stream into the server on conn.
type PartitionWriter interface {
	Write(ctx context.Context, conn pgbulk.DedicatedConnection, copySQL string, r io.Reader) (rows int64, err error)
}

// DirectWriter runs COPY in autocommit mode; the statement is its own transaction.
type DirectWriter struct{}

func (DirectWriter) Write(ctx context.Context, conn pgbulk.DedicatedConnection, copySQL string, r io.Reader) (int64, error) {
	tag, err := conn.CopyFrom(ctx, r, copySQL)
	if err != nil {
		return 0, fmt.Errorf("copy failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TransactionalWriter wraps COPY in an explicit transaction at IsolationLevel.
type TransactionalWriter struct {
	// IsolationLevel is an SQL isolation level such as "READ COMMITTED".
	IsolationLevel string
}

func (w TransactionalWriter) Write(ctx context.Context, conn pgbulk.DedicatedConnection, copySQL string, r io.Reader) (int64, error) {
	begin := "BEGIN"
	if w.IsolationLevel != "" {
		begin += " ISOLATION LEVEL " + w.IsolationLevel
	}
	if _, err := conn.Exec(ctx, begin); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tag, err := conn.CopyFrom(ctx, r, copySQL)
	if err != nil {
		if _, rbErr := conn.Exec(ctx, "ROLLBACK"); rbErr != nil {
			return 0, fmt.Errorf("copy failed: %w (rollback: %v)", err, rbErr)
		}
		return 0, fmt.Errorf("copy failed: %w", err)
	}

	if _, err := conn.Exec(ctx, "COMMIT"); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NegotiateIsolation returns configured normalized to its SQL spelling, or the
// server's default_transaction_isolation when configured is empty.
func NegotiateIsolation(ctx context.Context, conn pgbulk.Querier, configured string) (string, error) {
	if strings.TrimSpace(configured) != "" {
		return pgbulk.ParseIsolationLevel(configured)
	}
	var level string
	if err := conn.QueryRow(ctx, "SHOW default_transaction_isolation").Scan(&level); err != nil {
		return "", fmt.Errorf("failed to read default isolation level: %w", err)
	}
	return pgbulk.ParseIsolationLevel(level)
}

// NewWriter selects the writer for atomicity. isolation is only used by
// transaction atomicity.
func NewWriter(atomicity pgbulk.Atomicity, isolation string) (PartitionWriter, error) {
	switch atomicity {
	case pgbulk.AtomicityStaging, "":
		return DirectWriter{}, nil
	case pgbulk.AtomicityTransaction:
		return TransactionalWriter{IsolationLevel: isolation}, nil
	default:
		return nil, fmt.Errorf("atomicity %q: %w", atomicity, pgbulk.ErrInvalidConfig)
	}
}
