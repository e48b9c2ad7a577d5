// Package ddl derives CREATE TABLE column definitions from a dataset schema.
package ddl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// SQLType returns the PostgreSQL type a column kind is created as.
func SQLType(t pgbulk.ColumnType) string {
	switch t.Kind {
	case pgbulk.KindText:
		return "TEXT"
	case pgbulk.KindBoolean:
		return "BOOLEAN"
	case pgbulk.KindInt8, pgbulk.KindInt16:
		return "SMALLINT"
	case pgbulk.KindInt32:
		return "INTEGER"
	case pgbulk.KindInt64:
		return "BIGINT"
	case pgbulk.KindFloat32:
		return "REAL"
	case pgbulk.KindFloat64:
		return "DOUBLE PRECISION"
	case pgbulk.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case pgbulk.KindDate:
		return "DATE"
	case pgbulk.KindTimestamp:
		return "TIMESTAMP"
	case pgbulk.KindBinary:
		return "BYTEA"
	case pgbulk.KindUserDefined:
		if t.Inner != nil {
			return SQLType(*t.Inner)
		}
	}
	return "TEXT"
}

// ColumnDefinitions renders the column list of CREATE TABLE, e.g.
// `"id" BIGINT NOT NULL, "name" TEXT`. overrides replaces the SQL type of the
// named columns verbatim; naming a column the schema does not have is an error.
func ColumnDefinitions(schema pgbulk.Schema, overrides map[string]string) (string, error) {
	if schema.Len() == 0 {
		return "", fmt.Errorf("schema has no columns: %w", pgbulk.ErrInvalidConfig)
	}

	known := make(map[string]bool, schema.Len())
	defs := make([]string, 0, schema.Len())
	for _, col := range schema.Columns {
		if known[col.Name] {
			return "", fmt.Errorf("duplicate column %q: %w", col.Name, pgbulk.ErrInvalidConfig)
		}
		known[col.Name] = true

		typ := SQLType(col.Type)
		if o, ok := overrides[col.Name]; ok && strings.TrimSpace(o) != "" {
			typ = strings.TrimSpace(o)
		}
		def := pgx.Identifier{col.Name}.Sanitize() + " " + typ
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	var unknown []string
	for name := range overrides {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", fmt.Errorf("column type overrides name unknown columns %s: %w",
			strings.Join(unknown, ", "), pgbulk.ErrInvalidConfig)
	}

	return strings.Join(defs, ", "), nil
}

// CreateTableSQL returns CREATE TABLE IF NOT EXISTS for a quoted table name.
func CreateTableSQL(quotedTable, columnDefs, options string) string {
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quotedTable, columnDefs)
	if options = strings.TrimSpace(options); options != "" {
		sql += " " + options
	}
	return sql
}
