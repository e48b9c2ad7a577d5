package copytext

import (
	"fmt"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// CopySQL returns the COPY FROM STDIN statement for a quoted table identifier.
func CopySQL(quotedTable string, delim rune) string {
	return fmt.Sprintf("COPY %s FROM STDIN WITH NULL AS '%s' DELIMITER AS E'%s'",
		quotedTable, pgbulk.NullToken, delimiterLiteral(delim))
}

// delimiterLiteral escapes delim for use inside an E'' string constant.
func delimiterLiteral(delim rune) string {
	switch delim {
	case '\'':
		return `\'`
	case '\t':
		return `\t`
	default:
		return string(delim)
	}
}
