package tui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

func update(t *testing.T, m progressModel, msgs ...tea.Msg) progressModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(progressModel)
		require.True(t, ok)
	}
	return m
}

func TestProgressModel_CountsAttempts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newProgressModel()
	m.now = func() time.Time { return now }

	m = update(t, m,
		loadStartedMsg{table: "public.orders", partitions: 4},
		partitionStartedMsg{index: 0, attempt: 1},
		partitionStartedMsg{index: 1, attempt: 1},
		partitionFinishedMsg{Index: 0, Attempt: 1, Rows: 10, Bytes: 2048},
		partitionFinishedMsg{Index: 1, Attempt: 1, Err: errors.New("connection reset")},
		partitionStartedMsg{index: 1, attempt: 2},
	)

	assert.Equal(t, 1, m.succeeded)
	assert.Equal(t, 1, m.retried)
	assert.Equal(t, int64(10), m.rows)
	assert.Equal(t, map[int]int{1: 2}, m.running)
	assert.InDelta(t, 0.25, m.percent(), 1e-9)

	view := m.View()
	assert.Contains(t, view, "Loading public.orders")
	assert.Contains(t, view, "1/4 partitions")
	assert.Contains(t, view, "1 running")
	assert.Contains(t, view, "10 rows")
	assert.Contains(t, view, "1 failed attempts, last: connection reset")
}

func TestProgressModel_FinishQuits(t *testing.T) {
	m := update(t, newProgressModel(), loadStartedMsg{table: "orders", partitions: 1})

	next, cmd := m.Update(loadFinishedMsg{result: &pgbulk.LoadResult{Rows: 42}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	view := next.View()
	assert.Contains(t, view, "loaded 42 rows into orders")
}

func TestProgressModel_FailureView(t *testing.T) {
	m := update(t, newProgressModel(),
		loadStartedMsg{table: "orders", partitions: 2},
		loadFinishedMsg{err: errors.New("load incomplete")},
	)

	assert.Contains(t, m.View(), "load into orders failed: load incomplete")
}

func TestProgressModel_EmptyLoad(t *testing.T) {
	m := update(t, newProgressModel(), loadStartedMsg{table: "orders", partitions: 0})
	assert.Zero(t, m.percent())

	m.done = true
	assert.Equal(t, 1.0, m.percent())
}

func TestProgress_DrawsFinalLine(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, false)

	p.LoadStarted("orders", 1)
	p.PartitionStarted(0, 1)
	p.PartitionFinished(pgbulk.PartitionReport{Index: 0, Attempt: 1, Rows: 3})
	p.LoadFinished(&pgbulk.LoadResult{Rows: 3}, nil)

	assert.Contains(t, out.String(), "loaded 3 rows into orders")
}

func TestProgress_EventsWithoutStartAreIgnored(t *testing.T) {
	p := NewProgress(&bytes.Buffer{}, false)

	p.PartitionStarted(0, 1)
	p.PartitionFinished(pgbulk.PartitionReport{})
	p.LoadFinished(nil, nil)
}

func TestProgress_LogsOutsideALoadGoStraightToOutput(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, false)

	p.Info("connecting to %s", "db")
	p.Verbose("hidden")
	p.Error("boom")

	assert.Contains(t, out.String(), "connecting to db\n")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "[ERROR] boom")
}
