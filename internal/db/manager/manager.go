package manager

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgbulk/internal/ddl"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

const (
	queryTableExists = "SELECT to_regclass($1) IS NOT NULL"

	queryStagingTables = `
		SELECT s.name, COALESCE(array_agg(t.tablename::text ORDER BY t.tablename)
		                        FILTER (WHERE t.tablename IS NOT NULL), '{}')
		FROM (SELECT COALESCE(NULLIF($1, ''), current_schema()) AS name) s
		LEFT JOIN pg_catalog.pg_tables t ON t.schemaname = s.name AND t.tablename ~ $2
		GROUP BY s.name`
)

// Manager implements pgbulk.TableManager.
type Manager struct{}

// New creates a new table manager.
func New() pgbulk.TableManager {
	return &Manager{}
}

// Exists reports whether the table exists.
func (m *Manager) Exists(ctx context.Context, conn pgbulk.Querier, table pgbulk.TableName) (bool, error) {
	var exists bool
	if err := conn.QueryRow(ctx, queryTableExists, table.Quoted()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// Create runs CREATE TABLE IF NOT EXISTS. Concurrent callers are safe.
func (m *Manager) Create(ctx context.Context, conn pgbulk.Execer, table pgbulk.TableName, columnDefs, options string) error {
	if _, err := conn.Exec(ctx, ddl.CreateTableSQL(table.Quoted(), columnDefs, options)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Drop runs DROP TABLE IF EXISTS.
func (m *Manager) Drop(ctx context.Context, conn pgbulk.Execer, table pgbulk.TableName) error {
	if _, err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+table.Quoted()); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// Promote drops target and renames staging to target's name in one transaction.
// staging must be in target's schema.
func (m *Manager) Promote(ctx context.Context, conn pgbulk.DBConnection, staging, target pgbulk.TableName) (err error) {
	if staging.Schema != target.Schema {
		return fmt.Errorf("staging table %s is not in the schema of %s: %w", staging, target, pgbulk.ErrInvalidConfig)
	}

	tx, err := conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		if closeErr := tx.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close connection after promotion: %w", closeErr)
		}
	}()

	if _, err := tx.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("failed to begin promotion: %w", err)
	}

	statements := []string{
		"DROP TABLE IF EXISTS " + target.Quoted(),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging.Quoted(), pgx.Identifier{target.Name}.Sanitize()),
		"COMMIT",
	}
	for _, stmt := range statements {
		if _, execErr := tx.Exec(ctx, stmt); execErr != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK"); rbErr != nil {
				execErr = errors.Join(execErr, fmt.Errorf("rollback: %w", rbErr))
			}
			return fmt.Errorf("failed to promote %s to %s: %w", staging, target, execErr)
		}
	}
	return nil
}

// RowCount returns the number of rows in the table.
func (m *Manager) RowCount(ctx context.Context, conn pgbulk.Querier, table pgbulk.TableName) (int64, error) {
	var n int64
	if err := conn.QueryRow(ctx, "SELECT count(*) FROM "+table.Quoted()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

// ListStaging returns tables named like staging tables of target: the target
// name, truncated as for staging, followed by 32 lowercase hex digits.
func (m *Manager) ListStaging(ctx context.Context, conn pgbulk.DBConnection, target pgbulk.TableName) ([]pgbulk.TableName, error) {
	base := pgbulk.TruncateIdentifier(target.Name, pgbulk.MaxIdentifierLength-pgbulk.StagingSuffixLength)
	pattern := fmt.Sprintf("^%s[0-9a-f]{%d}$", regexp.QuoteMeta(base), pgbulk.StagingSuffixLength)

	var schema string
	var names []string
	if err := conn.QueryRow(ctx, queryStagingTables, target.Schema, pattern).Scan(&schema, &names); err != nil {
		return nil, fmt.Errorf("failed to list staging tables of %s: %w", target, err)
	}

	tables := make([]pgbulk.TableName, 0, len(names))
	for _, name := range names {
		tables = append(tables, pgbulk.TableName{Schema: schema, Name: name})
	}
	return tables, nil
}

var _ pgbulk.TableManager = (*Manager)(nil)
