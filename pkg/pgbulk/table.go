package pgbulk

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// TableName is a possibly schema-qualified table identifier.
type TableName struct {
	Schema string
	Name   string
}

// ParseTableName parses "table" or "schema.table".
func ParseTableName(s string) (TableName, error) {
	schema, name, err := SplitTableName(s)
	if err != nil {
		return TableName{}, err
	}
	return TableName{Schema: schema, Name: name}, nil
}

// Quoted returns the identifier quoted for use in SQL.
func (t TableName) Quoted() string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// String returns the unquoted dotted form.
func (t TableName) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// WithSuffix returns a table in the same schema named Name+suffix, truncating
// Name so the result fits MaxIdentifierLength bytes.
func (t TableName) WithSuffix(suffix string) TableName {
	return TableName{Schema: t.Schema, Name: TruncateIdentifier(t.Name, MaxIdentifierLength-len(suffix)) + suffix}
}

// TruncateIdentifier shortens s to at most max bytes without splitting a character.
func TruncateIdentifier(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// StagingSuffix turns a UUID string into a staging table suffix by removing its dashes.
func StagingSuffix(uuid string) string {
	return strings.ReplaceAll(uuid, "-", "")
}

// TableManager performs table lifecycle operations for a load.
// Implementations are stateless; thread safety follows the connection passed in.
type TableManager interface {
	// Exists reports whether the table exists.
	Exists(ctx context.Context, conn Querier, table TableName) (bool, error)

	// Create runs CREATE TABLE IF NOT EXISTS with the given column definitions and options.
	Create(ctx context.Context, conn Execer, table TableName, columnDefs, options string) error

	// Drop runs DROP TABLE IF EXISTS.
	Drop(ctx context.Context, conn Execer, table TableName) error

	// Promote replaces target with staging in one transaction: the target is
	// dropped and staging is renamed to the target's name.
	Promote(ctx context.Context, conn DBConnection, staging, target TableName) error

	// RowCount returns the number of rows in the table.
	RowCount(ctx context.Context, conn Querier, table TableName) (int64, error)

	// ListStaging returns leftover staging tables of target.
	ListStaging(ctx context.Context, conn DBConnection, target TableName) ([]TableName, error)
}
