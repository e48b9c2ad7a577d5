package copytext

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

const secondsPerDay = 24 * 60 * 60

// Serialize converts a present value to its COPY text representation.
// It fails with pgbulk.ErrTypeMismatch when the value's Go type is not one the
// column kind accepts.
func Serialize(v any, t pgbulk.ColumnType, opts pgbulk.FormatOptions) (string, error) {
	switch t.Kind {
	case pgbulk.KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case pgbulk.KindBoolean:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case pgbulk.KindInt8:
		if n, ok := v.(int8); ok {
			return strconv.FormatInt(int64(n), 10), nil
		}
	case pgbulk.KindInt16:
		if n, ok := v.(int16); ok {
			return strconv.FormatInt(int64(n), 10), nil
		}
	case pgbulk.KindInt32:
		if n, ok := v.(int32); ok {
			return strconv.FormatInt(int64(n), 10), nil
		}
	case pgbulk.KindInt64:
		if n, ok := v.(int64); ok {
			return strconv.FormatInt(n, 10), nil
		}
	case pgbulk.KindFloat32:
		if f, ok := v.(float32); ok {
			return formatFloat(float64(f), 32), nil
		}
	case pgbulk.KindFloat64:
		if f, ok := v.(float64); ok {
			return formatFloat(f, 64), nil
		}
	case pgbulk.KindDecimal:
		switch n := v.(type) {
		case pgtype.Numeric:
			return formatNumeric(n)
		case *pgtype.Numeric:
			if n != nil {
				return formatNumeric(*n)
			}
		}
	case pgbulk.KindDate:
		switch d := v.(type) {
		case int32:
			return time.Unix(int64(d)*secondsPerDay, 0).UTC().Format(opts.DateFormat), nil
		case time.Time:
			return d.Format(opts.DateFormat), nil
		}
	case pgbulk.KindTimestamp:
		loc := opts.Location
		if loc == nil {
			loc = time.UTC
		}
		switch ts := v.(type) {
		case int64:
			return time.UnixMicro(ts).In(loc).Format(opts.TimestampFormat), nil
		case time.Time:
			return ts.In(loc).Format(opts.TimestampFormat), nil
		}
	case pgbulk.KindBinary:
		if b, ok := v.([]byte); ok {
			// Lossy for payloads that are not UTF-8.
			return strings.ToValidUTF8(string(b), "\uFFFD"), nil
		}
	case pgbulk.KindUserDefined:
		if t.Inner == nil {
			return fmt.Sprint(v), nil
		}
		return Serialize(v, *t.Inner, opts)
	default:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("%s column cannot hold %T: %w", t, v, pgbulk.ErrTypeMismatch)
}

func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

// formatNumeric renders n exactly, keeping trailing zeros implied by its exponent.
func formatNumeric(n pgtype.Numeric) (string, error) {
	if !n.Valid {
		return "", fmt.Errorf("invalid numeric: %w", pgbulk.ErrTypeMismatch)
	}
	if n.NaN {
		return "NaN", nil
	}
	switch n.InfinityModifier {
	case pgtype.Infinity:
		return "Infinity", nil
	case pgtype.NegativeInfinity:
		return "-Infinity", nil
	}

	i := n.Int
	if i == nil {
		i = new(big.Int)
	}
	digits := new(big.Int).Abs(i).String()
	sign := ""
	if i.Sign() < 0 {
		sign = "-"
	}

	if n.Exp >= 0 {
		if i.Sign() == 0 {
			return "0", nil
		}
		return sign + digits + strings.Repeat("0", int(n.Exp)), nil
	}

	scale := int(-n.Exp)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:], nil
}
