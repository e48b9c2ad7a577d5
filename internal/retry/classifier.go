package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Specific transient SQLSTATEs outside the transient classes.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeLockNotAvailable     = "55P03"
)

// transientClasses are SQLSTATE classes that are always worth retrying:
// 08 connection exception, 53 insufficient resources, 57 operator intervention.
var transientClasses = []string{"08", "53", "57"}

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection failure",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"too many connections",
	"server closed the connection",
	"unexpected eof",
}

// PostgreSQLErrorClassifier treats connection, resource and concurrency errors as transient.
type PostgreSQLErrorClassifier struct{}

// NewPostgreSQLErrorClassifier creates a new PostgreSQL error classifier.
func NewPostgreSQLErrorClassifier() *PostgreSQLErrorClassifier {
	return &PostgreSQLErrorClassifier{}
}

// IsTransient reports whether err is likely to go away on its own.
func (c *PostgreSQLErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientCode(pgErr.Code)
	}

	if isTransientNetError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func isTransientCode(code string) bool {
	for _, class := range transientClasses {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	switch code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeLockNotAvailable:
		return true
	}
	return false
}

func isTransientNetError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	if opErr.Timeout() {
		return true
	}
	return errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
		errors.Is(opErr.Err, syscall.ECONNRESET) ||
		errors.Is(opErr.Err, syscall.ENETUNREACH) ||
		errors.Is(opErr.Err, syscall.EHOSTUNREACH)
}

// TaskClassifier decides whether a failed partition task is re-run.
// Every failure is retried except cancellation and errors caused by the
// configuration or the data itself.
type TaskClassifier struct{}

// NewTaskClassifier creates a TaskClassifier.
func NewTaskClassifier() *TaskClassifier {
	return &TaskClassifier{}
}

// IsTransient reports whether another attempt could succeed.
func (c *TaskClassifier) IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, pgbulk.ErrInvalidConfig),
		errors.Is(err, pgbulk.ErrTypeMismatch),
		errors.Is(err, pgbulk.ErrRowWidth):
		return false
	}
	return true
}
