package uploader_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgbulk/internal/uploader"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

const copySQL = `COPY "t" FROM STDIN WITH NULL AS 'NULL' DELIMITER AS E','`

func TestTransactionalWriter_Commit(t *testing.T) {
	conn := &fakeConn{}
	rows, err := uploader.TransactionalWriter{IsolationLevel: "SERIALIZABLE"}.
		Write(context.Background(), conn, copySQL, strings.NewReader("1\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Equal(t, []string{"BEGIN ISOLATION LEVEL SERIALIZABLE", copySQL, "COMMIT"}, conn.statements)
}

func TestTransactionalWriter_RollbackOnCopyFailure(t *testing.T) {
	conn := &fakeConn{copyErr: errors.New("invalid input syntax")}
	_, err := uploader.TransactionalWriter{}.Write(context.Background(), conn, copySQL, strings.NewReader("x\n"))
	require.Error(t, err)
	assert.Equal(t, []string{"BEGIN", copySQL, "ROLLBACK"}, conn.statements)
}

func TestTransactionalWriter_CommitFailure(t *testing.T) {
	conn := &fakeConn{failOn: "COMMIT"}
	_, err := uploader.TransactionalWriter{}.Write(context.Background(), conn, copySQL, strings.NewReader("1\n"))
	assert.ErrorContains(t, err, "commit")
}

func TestDirectWriter(t *testing.T) {
	conn := &fakeConn{}
	rows, err := uploader.DirectWriter{}.Write(context.Background(), conn, copySQL, strings.NewReader("1\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, []string{copySQL}, conn.statements)
}

func TestNegotiateIsolation(t *testing.T) {
	level, err := uploader.NegotiateIsolation(context.Background(), &fakeConn{}, "repeatable_read")
	require.NoError(t, err)
	assert.Equal(t, "REPEATABLE READ", level)

	level, err = uploader.NegotiateIsolation(context.Background(), &fakeConn{}, "")
	require.NoError(t, err)
	assert.Equal(t, "READ COMMITTED", level, "falls back to the server default")

	_, err = uploader.NegotiateIsolation(context.Background(), &fakeConn{}, "snapshot")
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
}

func TestNewWriter(t *testing.T) {
	w, err := uploader.NewWriter(pgbulk.AtomicityStaging, "")
	require.NoError(t, err)
	assert.IsType(t, uploader.DirectWriter{}, w)

	w, err = uploader.NewWriter(pgbulk.AtomicityTransaction, "SERIALIZABLE")
	require.NoError(t, err)
	assert.Equal(t, uploader.TransactionalWriter{IsolationLevel: "SERIALIZABLE"}, w)

	_, err = uploader.NewWriter("two-phase", "")
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
}
