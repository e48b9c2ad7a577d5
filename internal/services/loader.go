package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vvka-141/pgbulk/internal/copytext"
	"github.com/vvka-141/pgbulk/internal/counter"
	"github.com/vvka-141/pgbulk/internal/db"
	"github.com/vvka-141/pgbulk/internal/ddl"
	"github.com/vvka-141/pgbulk/internal/runner"
	"github.com/vvka-141/pgbulk/internal/stats"
	"github.com/vvka-141/pgbulk/internal/uploader"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// ConnectorFactory builds a connector for a resolved connection.
type ConnectorFactory func(*pgbulk.ConnectionConfig, ...db.Option) (pgbulk.Connector, error)

type connectFunc func(ctx context.Context, connConfig *pgbulk.ConnectionConfig, maxConns int) (pgbulk.DBConnection, func(), error)

type counterFunc func(ctx context.Context, cfg pgbulk.CounterConfig, loadID string) (counter.Counter, error)

// LoadService implements pgbulk.Loader.
// Thread-Safety: safe for concurrent Load calls; every load gets its own pool,
// counter and staging table.
type LoadService struct {
	connectorFactory ConnectorFactory
	tables           pgbulk.TableManager
	logger           pgbulk.Logger
	observer         pgbulk.LoadObserver

	connect    connectFunc
	newCounter counterFunc
	newLoadID  func() string
	retryDelay time.Duration
}

// NewLoadService creates a LoadService. observer may be nil.
// Panics on nil required dependencies.
func NewLoadService(
	connectorFactory ConnectorFactory,
	tables pgbulk.TableManager,
	logger pgbulk.Logger,
	observer pgbulk.LoadObserver,
) *LoadService {
	if connectorFactory == nil {
		panic("connectorFactory cannot be nil")
	}
	if tables == nil {
		panic("tables cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	s := &LoadService{
		connectorFactory: connectorFactory,
		tables:           tables,
		logger:           logger,
		observer:         observer,
		newCounter:       counter.New,
		newLoadID:        uuid.NewString,
		retryDelay:       pgbulk.DefaultTaskRetryDelay,
	}
	s.connect = s.defaultConnect
	return s
}

func (s *LoadService) defaultConnect(ctx context.Context, connConfig *pgbulk.ConnectionConfig, maxConns int) (pgbulk.DBConnection, func(), error) {
	connector, err := s.connectorFactory(connConfig, db.WithMaxConns(maxConns), db.WithLogger(s.logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connector: %w", err)
	}

	pool, err := connector.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		if c, ok := connector.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Verbose("closing connector: %v", err)
			}
		}
	}
	return db.NewPoolAdapter(pool), cleanup, nil
}

// loadPlan is everything derived from the configuration before any I/O.
type loadPlan struct {
	loadID     string
	target     pgbulk.TableName
	writeTable pgbulk.TableName
	staging    bool
	encoder    *copytext.Encoder
	columnDefs string
	partitions int
}

// Load copies every partition of ds into cfg.Table.
//
// Replace mode with staging atomicity writes all partitions to a staging table
// and swaps it for the target only when the success counter reaches the
// partition count. Otherwise the staging table is dropped and the target is
// left untouched. Append mode and transaction atomicity write to the target
// directly, so partitions committed before a failure stay visible.
func (s *LoadService) Load(ctx context.Context, ds pgbulk.Dataset, cfg pgbulk.LoadConfig) (*pgbulk.LoadResult, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if ds == nil {
		return nil, fmt.Errorf("dataset is required: %w", pgbulk.ErrInvalidConfig)
	}

	plan, err := s.plan(ds, cfg)
	if err != nil {
		return nil, err
	}

	connConfig, err := connectionConfig(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	recorder := stats.NewRecorder()
	obs := stats.Observer{Recorder: recorder, Next: s.observer}
	obs.LoadStarted(plan.target.String(), plan.partitions)

	start := time.Now()
	res := &pgbulk.LoadResult{
		Table:      plan.target.String(),
		Append:     cfg.Append,
		Atomicity:  cfg.Atomicity,
		Partitions: plan.partitions,
	}
	if plan.staging {
		res.StagingTable = plan.writeTable.String()
	}

	err = s.run(ctx, ds, cfg, plan, connConfig, obs, res)

	res.Duration = time.Since(start)
	res.Summary = recorder.Summary()
	obs.LoadFinished(res, err)
	if err != nil {
		s.logger.Error("load into %s failed after %v: %v", plan.target, res.Duration.Round(time.Millisecond), err)
		return nil, err
	}

	s.logger.Info("Loaded %d rows into %s (%s mode, %d partitions) in %v",
		res.Rows, plan.target, res.Mode(), plan.partitions, res.Duration.Round(time.Millisecond))
	s.logger.Verbose("Upload statistics: %s", res.Summary)
	return res, nil
}

func (s *LoadService) plan(ds pgbulk.Dataset, cfg pgbulk.LoadConfig) (*loadPlan, error) {
	opts, err := cfg.FormatOptions()
	if err != nil {
		return nil, err
	}
	schema := ds.Schema()
	encoder, err := copytext.NewEncoder(schema.Types(), opts)
	if err != nil {
		return nil, err
	}
	columnDefs, err := ddl.ColumnDefinitions(schema, cfg.ColumnTypes)
	if err != nil {
		return nil, err
	}
	target, err := pgbulk.ParseTableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	n := ds.NumPartitions()
	if n < 0 {
		return nil, fmt.Errorf("dataset reports %d partitions: %w", n, pgbulk.ErrSourceFailed)
	}

	p := &loadPlan{
		loadID:     s.newLoadID(),
		target:     target,
		writeTable: target,
		encoder:    encoder,
		columnDefs: columnDefs,
		partitions: n,
	}
	if !cfg.Append && cfg.Atomicity == pgbulk.AtomicityStaging {
		p.staging = true
		p.writeTable = target.WithSuffix(pgbulk.StagingSuffix(p.loadID))
	}
	return p, nil
}

func connectionConfig(cfg pgbulk.LoadConfig) (*pgbulk.ConnectionConfig, error) {
	connConfig, err := db.ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w: %w", err, pgbulk.ErrInvalidConfig)
	}
	if connConfig.AppName == "" {
		connConfig.AppName = "pgbulk"
	}
	connConfig.AuthMethod = cfg.AuthMethod
	connConfig.AzureTenantID = cfg.AzureTenantID
	connConfig.AzureClientID = cfg.AzureClientID
	connConfig.AzureClientSecret = cfg.AzureClientSecret
	connConfig.AWSRegion = cfg.AWSRegion
	connConfig.GoogleInstance = cfg.GoogleInstance
	return connConfig, nil
}

func (s *LoadService) run(
	ctx context.Context,
	ds pgbulk.Dataset,
	cfg pgbulk.LoadConfig,
	plan *loadPlan,
	connConfig *pgbulk.ConnectionConfig,
	obs pgbulk.LoadObserver,
	res *pgbulk.LoadResult,
) error {
	// One connection per running task plus one for the coordinator.
	conn, closeConn, err := s.connect(ctx, connConfig, cfg.Parallelism+1)
	if err != nil {
		return err
	}
	defer closeConn()

	if cfg.Append {
		exists, err := s.tables.Exists(ctx, conn, plan.target)
		if err != nil {
			return err
		}
		res.Created = !exists
		if !exists {
			s.logger.Info("%s does not exist; the first partition creates it", plan.target)
		}
	}

	writer, err := s.prepareWriter(ctx, conn, cfg, plan)
	if err != nil {
		return err
	}

	ctr, err := s.newCounter(ctx, cfg.Counter, plan.loadID)
	if err != nil {
		return fmt.Errorf("failed to open success counter: %w", err)
	}
	defer func() {
		if err := ctr.Close(); err != nil {
			s.logger.Error("closing success counter: %v", err)
		}
	}()
	if key := ctr.Key(); key != "" {
		s.logger.Verbose("Success counter key: %s", key)
	}

	up := uploader.New(conn, uploader.Config{
		Dataset:            ds,
		Encoder:            plan.encoder,
		Writer:             writer,
		Counter:            ctr,
		Tables:             s.tables,
		ColumnDefs:         plan.columnDefs,
		CreateTableOptions: cfg.CreateTableOptions,
		SpillDir:           cfg.SpillDir,
		SpillCompression:   cfg.SpillCompression,
		Logger:             s.logger,
	})
	r := runner.New(runner.Config{
		Parallelism: cfg.Parallelism,
		MaxAttempts: cfg.MaxTaskAttempts,
		RetryDelay:  s.retryDelay,
		AttemptRate: cfg.ConnectRate,
		Logger:      s.logger,
	})

	s.logger.Verbose("Loading %d partitions into %s (parallelism %d, %d attempts per partition)",
		plan.partitions, plan.writeTable, cfg.Parallelism, r.MaxAttempts())

	var rows, bytes atomic.Int64
	runErr := r.Run(ctx, plan.partitions, func(ctx context.Context, index, attempt int) error {
		obs.PartitionStarted(index, attempt)
		out, err := up.Upload(ctx, uploader.Task{
			Index:       index,
			Attempt:     attempt,
			Table:       plan.writeTable,
			CreateTable: true,
			// Only a partition that is out of attempts may drop the shared
			// staging table; an earlier drop would discard rows other
			// partitions already counted.
			DropOnFailure: plan.staging && attempt == r.MaxAttempts(),
		})
		obs.PartitionFinished(pgbulk.PartitionReport{
			Index:    index,
			Attempt:  attempt,
			Rows:     out.Rows,
			Bytes:    out.Bytes,
			Duration: out.Duration,
			Err:      err,
		})
		if err != nil {
			return err
		}
		rows.Add(out.Rows)
		bytes.Add(out.Bytes)
		return nil
	})

	// The counter is read and cleanup done even when ctx was cancelled.
	settled := context.WithoutCancel(ctx)

	succeeded, countErr := ctr.Value(settled)
	res.SuccessfulAttempts = succeeded
	res.Rows = rows.Load()
	res.Bytes = bytes.Load()

	if countErr != nil || runErr != nil || succeeded != int64(plan.partitions) {
		s.abandon(settled, conn, plan)
		switch {
		case countErr != nil:
			return errors.Join(fmt.Errorf("failed to read success counter: %w: %w", countErr, pgbulk.ErrLoadIncomplete), runErr)
		case runErr != nil:
			return fmt.Errorf("%w: %d of %d partitions succeeded: %w", pgbulk.ErrLoadIncomplete, succeeded, plan.partitions, runErr)
		default:
			return fmt.Errorf("%w: success counter is %d, expected %d", pgbulk.ErrLoadIncomplete, succeeded, plan.partitions)
		}
	}

	if plan.staging {
		if err := s.promote(ctx, conn, cfg, plan); err != nil {
			return err
		}
	}
	s.countTarget(ctx, conn, plan.target, res)
	return nil
}

// countTarget records the target's row count after a successful load. A
// failure to count is logged; the load itself already succeeded.
func (s *LoadService) countTarget(ctx context.Context, conn pgbulk.DBConnection, target pgbulk.TableName, res *pgbulk.LoadResult) {
	n, err := s.tables.RowCount(ctx, conn, target)
	if err != nil {
		s.logger.Error("counting rows of %s: %v", target, err)
		return
	}
	res.TableRows = n
	if !res.Append && n != res.Rows {
		s.logger.Info("%s holds %d rows but partitions reported %d; a retried partition may have been copied twice",
			target, n, res.Rows)
	}
}

// prepareWriter picks the partition writer. Replace mode with transaction
// atomicity has no staging table, so the target is recreated here.
func (s *LoadService) prepareWriter(ctx context.Context, conn pgbulk.DBConnection, cfg pgbulk.LoadConfig, plan *loadPlan) (uploader.PartitionWriter, error) {
	if cfg.Atomicity != pgbulk.AtomicityTransaction {
		return uploader.NewWriter(cfg.Atomicity, "")
	}

	level, err := uploader.NegotiateIsolation(ctx, conn, cfg.IsolationLevel)
	if err != nil {
		return nil, err
	}
	s.logger.Verbose("Partition transactions use isolation level %s", level)

	if !cfg.Append {
		s.logger.Info("Transaction atomicity replaces %s partition by partition; a failed load leaves it partially loaded", plan.target)
		if err := s.tables.Drop(ctx, conn, plan.target); err != nil {
			return nil, err
		}
		if err := s.tables.Create(ctx, conn, plan.target, plan.columnDefs, cfg.CreateTableOptions); err != nil {
			return nil, err
		}
	}
	return uploader.NewWriter(cfg.Atomicity, level)
}

func (s *LoadService) promote(ctx context.Context, conn pgbulk.DBConnection, cfg pgbulk.LoadConfig, plan *loadPlan) error {
	if plan.partitions == 0 {
		if err := s.tables.Create(ctx, conn, plan.writeTable, plan.columnDefs, cfg.CreateTableOptions); err != nil {
			return fmt.Errorf("%w: %w", pgbulk.ErrPromotionFailed, err)
		}
	}

	if err := s.tables.Promote(ctx, conn, plan.writeTable, plan.target); err != nil {
		s.abandon(context.WithoutCancel(ctx), conn, plan)
		return fmt.Errorf("%w: %w", pgbulk.ErrPromotionFailed, err)
	}
	s.logger.Verbose("Promoted %s to %s", plan.writeTable, plan.target)
	return nil
}

// abandon drops the staging table of a failed load. Append mode and
// transaction atomicity have nothing to clean up.
func (s *LoadService) abandon(ctx context.Context, conn pgbulk.DBConnection, plan *loadPlan) {
	if !plan.staging {
		if plan.partitions > 0 {
			s.logger.Info("%s may contain rows from partitions that committed before the failure", plan.target)
		}
		return
	}
	if err := s.tables.Drop(ctx, conn, plan.writeTable); err != nil {
		s.logger.Error("failed to drop staging table %s: %v (remove it with 'pgbulk cleanup --table %s')",
			plan.writeTable, err, plan.target)
		return
	}
	s.logger.Verbose("Dropped staging table %s", plan.writeTable)
}

var _ pgbulk.Loader = (*LoadService)(nil)
