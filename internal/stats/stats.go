// Package stats collects per-partition upload statistics for a load.
package stats

import (
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Durations are tracked in milliseconds, from 1ms up to one hour, with 3
// significant digits. Longer attempts are clamped to the maximum.
const (
	minTrackableMillis = 1
	maxTrackableMillis = int64(time.Hour / time.Millisecond)
	significantFigures = 3
)

// Recorder accumulates partition attempt reports. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	durations *hdrhistogram.Histogram
	succeeded int64
	failed    int64
	rows      int64
	bytes     int64
	start     time.Time
}

// NewRecorder returns an empty recorder whose wall clock starts now.
func NewRecorder() *Recorder {
	return &Recorder{
		durations: hdrhistogram.New(minTrackableMillis, maxTrackableMillis, significantFigures),
		start:     time.Now(),
	}
}

// Record adds one attempt. Failed attempts are counted but not timed.
func (r *Recorder) Record(report pgbulk.PartitionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if report.Err != nil {
		r.failed++
		return
	}
	r.succeeded++
	r.rows += report.Rows
	r.bytes += report.Bytes

	ms := report.Duration.Milliseconds()
	if ms < minTrackableMillis {
		ms = minTrackableMillis
	}
	if ms > maxTrackableMillis {
		ms = maxTrackableMillis
	}
	_ = r.durations.RecordValue(ms)
}

// Snapshot is a point-in-time copy of the recorded totals.
type Snapshot struct {
	Succeeded int64
	Failed    int64
	Rows      int64
	Bytes     int64
	Elapsed   time.Duration

	P50, P95, P99, Max time.Duration
}

// Snapshot returns the current totals and latency percentiles.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Succeeded: r.succeeded,
		Failed:    r.failed,
		Rows:      r.rows,
		Bytes:     r.bytes,
		Elapsed:   time.Since(r.start),
	}
	if r.succeeded > 0 {
		s.P50 = millis(r.durations.ValueAtQuantile(50))
		s.P95 = millis(r.durations.ValueAtQuantile(95))
		s.P99 = millis(r.durations.ValueAtQuantile(99))
		s.Max = millis(r.durations.Max())
	}
	return s
}

// Summary renders the snapshot as one line.
func (s Snapshot) Summary() string {
	rate := "n/a"
	if secs := s.Elapsed.Seconds(); secs > 0 {
		rate = bytefmt.ByteSize(uint64(float64(s.Bytes)/secs)) + "/s"
	}
	return fmt.Sprintf("%d attempts ok, %d failed, %d rows, %s in %v (%s); partition p50 %v, p95 %v, p99 %v, max %v",
		s.Succeeded, s.Failed, s.Rows, bytefmt.ByteSize(uint64(s.Bytes)),
		s.Elapsed.Round(time.Millisecond), rate,
		s.P50, s.P95, s.P99, s.Max)
}

// Summary is shorthand for Snapshot().Summary().
func (r *Recorder) Summary() string {
	return r.Snapshot().Summary()
}

func millis(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Observer adapts a Recorder to pgbulk.LoadObserver and forwards every event
// to next when it is set.
type Observer struct {
	Recorder *Recorder
	Next     pgbulk.LoadObserver
}

func (o Observer) LoadStarted(table string, partitions int) {
	if o.Next != nil {
		o.Next.LoadStarted(table, partitions)
	}
}

func (o Observer) PartitionStarted(index, attempt int) {
	if o.Next != nil {
		o.Next.PartitionStarted(index, attempt)
	}
}

func (o Observer) PartitionFinished(report pgbulk.PartitionReport) {
	o.Recorder.Record(report)
	if o.Next != nil {
		o.Next.PartitionFinished(report)
	}
}

func (o Observer) LoadFinished(result *pgbulk.LoadResult, err error) {
	if o.Next != nil {
		o.Next.LoadFinished(result, err)
	}
}

var _ pgbulk.LoadObserver = Observer{}
