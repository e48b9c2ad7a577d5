package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

type stubApprover struct {
	approve bool
	err     error

	target string
	tables []pgbulk.TableName
}

func (a *stubApprover) RequestApproval(_ context.Context, target string, tables []pgbulk.TableName) (bool, error) {
	a.target = target
	a.tables = tables
	return a.approve, a.err
}

var cleanupConn = &pgbulk.ConnectionConfig{Host: "localhost", Port: 5432, Database: "shop"}

func TestCleanup_DropsListedTables(t *testing.T) {
	h := newHarness(t)
	h.tables.listResult = []pgbulk.TableName{stagingTable}

	tables, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "public.orders"})
	require.NoError(t, err)
	assert.Equal(t, []pgbulk.TableName{stagingTable}, tables)
	assert.Equal(t, []string{stagingTable.String()}, h.tables.calls(&h.tables.dropped))
	assert.Equal(t, 1, h.maxConns)
	assert.True(t, h.closed)
}

func TestCleanup_DryRunDropsNothing(t *testing.T) {
	h := newHarness(t)
	h.tables.listResult = []pgbulk.TableName{stagingTable}
	approver := &stubApprover{}

	tables, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "orders", DryRun: true, Approver: approver})
	require.NoError(t, err)
	assert.Len(t, tables, 1)
	assert.Empty(t, h.tables.calls(&h.tables.dropped))
	assert.Empty(t, approver.target, "dry run does not ask")
}

func TestCleanup_AsksBeforeDropping(t *testing.T) {
	h := newHarness(t)
	h.tables.listResult = []pgbulk.TableName{stagingTable}
	approver := &stubApprover{approve: true}

	_, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "public.orders", Approver: approver})
	require.NoError(t, err)
	assert.Equal(t, "public.orders", approver.target)
	assert.Equal(t, []pgbulk.TableName{stagingTable}, approver.tables)
	assert.Len(t, h.tables.calls(&h.tables.dropped), 1)
}

func TestCleanup_DeniedApproval(t *testing.T) {
	h := newHarness(t)
	h.tables.listResult = []pgbulk.TableName{stagingTable}

	_, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "orders", Approver: &stubApprover{}})
	assert.ErrorIs(t, err, pgbulk.ErrApprovalDenied)
	assert.Equal(t, pgbulk.ExitApprovalDenied, pgbulk.ExitCodeForError(err))
	assert.Empty(t, h.tables.calls(&h.tables.dropped))
}

func TestCleanup_ApprovalError(t *testing.T) {
	h := newHarness(t)
	h.tables.listResult = []pgbulk.TableName{stagingTable}

	_, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "orders", Approver: &stubApprover{err: context.Canceled}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.tables.calls(&h.tables.dropped))
}

func TestCleanup_NothingFoundSkipsApproval(t *testing.T) {
	h := newHarness(t)
	approver := &stubApprover{}

	tables, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "orders", Approver: approver})
	require.NoError(t, err)
	assert.Empty(t, tables)
	assert.Empty(t, approver.target)
}

func TestCleanup_DropErrorsAreJoined(t *testing.T) {
	h := newHarness(t)
	other := targetTable.WithSuffix("fedcba9876543210fedcba9876543210")
	h.tables.listResult = []pgbulk.TableName{stagingTable, other}
	h.tables.dropErr = errors.New("permission denied")

	tables, err := h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{Table: "orders"})
	require.Error(t, err)
	assert.Len(t, tables, 2)
	assert.Len(t, h.tables.calls(&h.tables.dropped), 2, "every table is attempted")
}

func TestCleanup_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Cleanup(context.Background(), nil, CleanupConfig{Table: "orders"})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)

	_, err = h.svc.Cleanup(context.Background(), cleanupConn, CleanupConfig{})
	assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
	assert.Zero(t, h.connects)
}
