package pgbulk

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tags the representation of a column's values.
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindBoolean
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal
	KindDate
	KindTimestamp
	KindBinary
	KindUserDefined
)

var kindNames = map[Kind]string{
	KindOther:       "other",
	KindText:        "text",
	KindBoolean:     "boolean",
	KindInt8:        "int8",
	KindInt16:       "int16",
	KindInt32:       "int32",
	KindInt64:       "int64",
	KindFloat32:     "float32",
	KindFloat64:     "float64",
	KindDecimal:     "decimal",
	KindDate:        "date",
	KindTimestamp:   "timestamp",
	KindBinary:      "binary",
	KindUserDefined: "user-defined",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(k))
}

// ColumnType describes how a column's values are represented.
// It is fixed per column for the life of a load.
type ColumnType struct {
	Kind Kind

	// Precision and Scale apply to KindDecimal.
	Precision int
	Scale     int

	// Name and Inner apply to KindUserDefined: the values are stored as Inner.
	Name  string
	Inner *ColumnType
}

// String renders the type in the form ParseColumnType accepts.
func (t ColumnType) String() string {
	switch t.Kind {
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case KindUserDefined:
		if t.Inner == nil {
			return t.Name
		}
		return fmt.Sprintf("%s<%s>", t.Name, t.Inner.String())
	default:
		return t.Kind.String()
	}
}

// Text, Boolean and the other helpers build the common column types.
func Text() ColumnType      { return ColumnType{Kind: KindText} }
func Boolean() ColumnType   { return ColumnType{Kind: KindBoolean} }
func Int8() ColumnType      { return ColumnType{Kind: KindInt8} }
func Int16() ColumnType     { return ColumnType{Kind: KindInt16} }
func Int32() ColumnType     { return ColumnType{Kind: KindInt32} }
func Int64() ColumnType     { return ColumnType{Kind: KindInt64} }
func Float32() ColumnType   { return ColumnType{Kind: KindFloat32} }
func Float64() ColumnType   { return ColumnType{Kind: KindFloat64} }
func Date() ColumnType      { return ColumnType{Kind: KindDate} }
func Timestamp() ColumnType { return ColumnType{Kind: KindTimestamp} }
func Binary() ColumnType    { return ColumnType{Kind: KindBinary} }
func Other() ColumnType     { return ColumnType{Kind: KindOther} }

// Decimal returns a fixed-point type with the given precision and scale.
func Decimal(precision, scale int) ColumnType {
	return ColumnType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// UserDefined wraps inner under a named user type.
func UserDefined(name string, inner ColumnType) ColumnType {
	return ColumnType{Kind: KindUserDefined, Name: name, Inner: &inner}
}

var (
	decimalPattern     = regexp.MustCompile(`^(?:decimal|numeric)\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	userDefinedPattern = regexp.MustCompile(`^([a-z_][a-z0-9_]*)\s*<(.+)>$`)
)

// ParseColumnType parses a type name such as "bigint", "decimal(10,2)" or "money<decimal(12,2)>".
// Both source-style names (int64, double) and PostgreSQL names (bigint, double precision) are accepted.
func ParseColumnType(s string) (ColumnType, error) {
	name := strings.ToLower(strings.TrimSpace(s))

	switch name {
	case "text", "string", "varchar":
		return Text(), nil
	case "bool", "boolean":
		return Boolean(), nil
	case "int8", "byte", "tinyint":
		return Int8(), nil
	case "int16", "short", "smallint":
		return Int16(), nil
	case "int32", "int", "integer":
		return Int32(), nil
	case "int64", "long", "bigint":
		return Int64(), nil
	case "float32", "float", "real":
		return Float32(), nil
	case "float64", "double", "double precision":
		return Float64(), nil
	case "decimal", "numeric":
		return Decimal(38, 18), nil
	case "date":
		return Date(), nil
	case "timestamp", "datetime":
		return Timestamp(), nil
	case "binary", "bytes", "bytea":
		return Binary(), nil
	case "other":
		return Other(), nil
	}

	if m := decimalPattern.FindStringSubmatch(name); m != nil {
		precision, _ := strconv.Atoi(m[1])
		scale, _ := strconv.Atoi(m[2])
		if scale > precision {
			return ColumnType{}, fmt.Errorf("decimal scale %d exceeds precision %d: %w", scale, precision, ErrInvalidConfig)
		}
		return Decimal(precision, scale), nil
	}

	if m := userDefinedPattern.FindStringSubmatch(name); m != nil {
		inner, err := ParseColumnType(m[2])
		if err != nil {
			return ColumnType{}, err
		}
		return UserDefined(m[1], inner), nil
	}

	return ColumnType{}, fmt.Errorf("unknown column type %q: %w", s, ErrInvalidConfig)
}

// Column is one named, typed column of a dataset.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is the ordered column list of a dataset.
type Schema struct {
	Columns []Column
}

// NewSchema returns a schema with the given columns in order.
func NewSchema(columns ...Column) Schema {
	return Schema{Columns: columns}
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Columns) }

// Types returns the column types in column order.
func (s Schema) Types() []ColumnType {
	types := make([]ColumnType, len(s.Columns))
	for i, c := range s.Columns {
		types[i] = c.Type
	}
	return types
}

// Names returns the column names in column order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ParseColumns parses "name:type" specifications, e.g. "id:bigint!" where a
// trailing "!" marks the column NOT NULL.
func ParseColumns(specs []string) (Schema, error) {
	var columns []Column
	for _, spec := range specs {
		name, typ, ok := strings.Cut(spec, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return Schema{}, fmt.Errorf("column %q must have the form name:type: %w", spec, ErrInvalidConfig)
		}
		nullable := true
		typ = strings.TrimSpace(typ)
		if strings.HasSuffix(typ, "!") {
			nullable = false
			typ = strings.TrimSuffix(typ, "!")
		}
		ct, err := ParseColumnType(typ)
		if err != nil {
			return Schema{}, fmt.Errorf("column %q: %w", name, err)
		}
		columns = append(columns, Column{Name: strings.TrimSpace(name), Type: ct, Nullable: nullable})
	}
	return Schema{Columns: columns}, nil
}

// FormatOptions controls how values are rendered in the COPY text stream.
type FormatOptions struct {
	Delimiter       rune
	DateFormat      string
	TimestampFormat string
	Location        *time.Location
}
