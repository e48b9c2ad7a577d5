package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vvka-141/pgbulk/internal/copytext"
	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// ConnectionSource hands out connections owned by a single attempt.
type ConnectionSource interface {
	Acquire(ctx context.Context) (pgbulk.DedicatedConnection, error)
}

// Config is shared by every attempt of a load and is read-only.
type Config struct {
	Dataset pgbulk.Dataset
	Encoder *copytext.Encoder
	Writer  PartitionWriter
	Counter pgbulk.Counter
	Tables  pgbulk.TableManager

	// ColumnDefs and CreateTableOptions build CREATE TABLE when a task asks for it.
	ColumnDefs         string
	CreateTableOptions string

	SpillDir         string
	SpillCompression pgbulk.Compression

	Logger pgbulk.Logger
}

// Task is one attempt at one partition.
type Task struct {
	Index   int
	Attempt int
	Table   pgbulk.TableName

	// CreateTable runs CREATE TABLE IF NOT EXISTS before copying.
	CreateTable bool

	// DropOnFailure drops Table when the attempt fails.
	DropOnFailure bool
}

// Result describes a successful attempt.
type Result struct {
	Rows int64

	// Bytes is the size of the COPY text stream; SpillBytes the size on disk.
	Bytes      int64
	SpillBytes int64

	Duration time.Duration
}

// Uploader runs partition attempts. Safe for concurrent use.
type Uploader struct {
	conns ConnectionSource
	cfg   Config
}

// New creates an Uploader. Panics if a required dependency is missing.
func New(conns ConnectionSource, cfg Config) *Uploader {
	if conns == nil {
		panic("connection source cannot be nil")
	}
	if cfg.Dataset == nil || cfg.Encoder == nil || cfg.Counter == nil || cfg.Tables == nil {
		panic("uploader config requires dataset, encoder, counter and table manager")
	}
	if cfg.Writer == nil {
		cfg.Writer = DirectWriter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNullLogger()
	}
	return &Uploader{conns: conns, cfg: cfg}
}

// Upload runs one attempt. The connection is closed and the spill file removed
// on every path. A failure to close the connection after a successful copy is
// logged and does not fail the attempt.
func (u *Uploader) Upload(ctx context.Context, task Task) (res Result, err error) {
	start := time.Now()
	log := logging.Scoped(u.cfg.Logger, fmt.Sprintf("partition %d/%d", task.Index, task.Attempt))

	conn, err := u.conns.Acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("partition %d: failed to acquire connection: %w", task.Index, err)
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Error("closing connection: %v", closeErr)
		}
	}()

	defer func() {
		if err == nil || !task.DropOnFailure {
			return
		}
		if dropErr := u.cfg.Tables.Drop(context.WithoutCancel(ctx), conn, task.Table); dropErr != nil {
			log.Verbose("best-effort drop of %s failed: %v", task.Table, dropErr)
		} else {
			log.Verbose("dropped %s after failure", task.Table)
		}
	}()

	sp, err := u.spill(ctx, task.Index)
	if err != nil {
		return res, err
	}
	defer func() {
		if rmErr := sp.remove(); rmErr != nil {
			log.Error("removing spill file %s: %v", sp.path, rmErr)
		}
	}()
	log.Verbose("spilled %d rows (%d bytes) to %s", sp.rows, sp.size, sp.path)

	if task.CreateTable {
		if err := u.cfg.Tables.Create(ctx, conn, task.Table, u.cfg.ColumnDefs, u.cfg.CreateTableOptions); err != nil {
			return res, fmt.Errorf("partition %d: %w", task.Index, err)
		}
	}

	r, err := sp.open()
	if err != nil {
		return res, fmt.Errorf("partition %d: %w", task.Index, err)
	}
	rows, err := u.cfg.Writer.Write(ctx, conn, copytext.CopySQL(task.Table.Quoted(), u.cfg.Encoder.Delimiter()), r)
	if closeErr := r.Close(); closeErr != nil && err == nil {
		log.Error("closing spill file: %v", closeErr)
	}
	if err != nil {
		return res, fmt.Errorf("partition %d into %s: %w", task.Index, task.Table, err)
	}
	if rows != sp.rows {
		log.Info("server reported %d rows, spilled %d", rows, sp.rows)
	}

	if err := u.cfg.Counter.Increment(ctx); err != nil {
		return res, fmt.Errorf("partition %d copied but not counted: %w", task.Index, err)
	}

	res = Result{Rows: rows, Bytes: sp.encoded, SpillBytes: sp.size, Duration: time.Since(start)}
	log.Verbose("copied %d rows in %v", rows, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (u *Uploader) spill(ctx context.Context, index int) (*spill, error) {
	it, err := u.cfg.Dataset.OpenPartition(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("partition %d: %w", index, wrapSource(err))
	}
	sp, err := writeSpill(u.cfg.SpillDir, index, u.cfg.SpillCompression, u.cfg.Encoder, it)
	closeErr := it.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		sp.remove() //nolint:errcheck
		return nil, fmt.Errorf("partition %d: closing iterator: %w", index, wrapSource(closeErr))
	}
	return sp, nil
}

func wrapSource(err error) error {
	if errors.Is(err, pgbulk.ErrSourceFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", err, pgbulk.ErrSourceFailed)
}
