package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/pgbulk/internal/config"
	"github.com/vvka-141/pgbulk/internal/db"
	"github.com/vvka-141/pgbulk/internal/db/manager"
	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/internal/services"
	"github.com/vvka-141/pgbulk/internal/source"
	"github.com/vvka-141/pgbulk/internal/tui"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

var loadCmd = &cobra.Command{
	Use:   "load [table]",
	Short: "Bulk-load a dataset into a table",
	Long: `Load copies every partition of a dataset into a PostgreSQL table.

The dataset is a set of parquet or JSON-lines objects under a blob URL
(file://, s3://, gs://). Parquet files are split by row group; JSON-lines
objects are one partition each and need their columns declared.

Modes:
  replace  (default) the target is dropped and recreated. With staging
           atomicity the new rows are written to a staging table that is
           renamed over the target only when every partition succeeded.
  append   rows are added to the target, which is created when missing.
           Partitions committed before a failure remain visible.

Settings are read from pgbulk.yaml; flags override them.

Password Authentication:
  Password is NOT accepted as a CLI flag. Use $PGPASSWORD, .pgpass,
  or a connection string.

Examples:
  # Replace a table from parquet exports
  pgbulk load analytics.orders --format parquet \
    --url "s3://exports?region=eu-west-1&prefix=orders/2024/"

  # Append JSON lines with declared columns
  pgbulk load events --mode append --format jsonl --url file:///data/events \
    --column id:bigint! --column kind:text --column at:timestamp \
    --path kind=payload.type`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

type loadFlagValues struct {
	conn connectionFlags

	mode               string
	atomicity          string
	delimiter          string
	dateFormat         string
	timestampFormat    string
	timeZone           string
	createTableOptions string
	columnTypes        map[string]string
	isolationLevel     string
	parallelism        int
	maxAttempts        int
	connectRate        float64
	spillDir           string
	spillCompression   string
	timeout            time.Duration

	counter    string
	redisAddr  string
	counterKey string

	format  string
	url     string
	columns []string
	paths   map[string]string

	noProgress bool
}

var loadFlags loadFlagValues

func init() {
	rootCmd.AddCommand(loadCmd)
	addLoadFlags(loadCmd, &loadFlags)
}

func addLoadFlags(cmd *cobra.Command, f *loadFlagValues) {
	addConnectionFlags(cmd, &f.conn)

	flags := cmd.Flags()
	flags.StringVar(&f.mode, "mode", "replace", "Write mode: replace|append")
	flags.StringVar(&f.atomicity, "atomicity", string(pgbulk.AtomicityStaging),
		"Partition write strategy: staging|transaction\n"+
			"staging: write to a staging table, promote when every partition succeeded\n"+
			"transaction: wrap each partition in its own transaction")
	flags.StringVar(&f.delimiter, "delimiter", pgbulk.DefaultDelimiter, "Single-character COPY field delimiter")
	flags.StringVar(&f.dateFormat, "date-format", pgbulk.DefaultDateFormat, "Go layout for date columns")
	flags.StringVar(&f.timestampFormat, "timestamp-format", pgbulk.DefaultTimestampFormat, "Go layout for timestamp columns")
	flags.StringVar(&f.timeZone, "time-zone", pgbulk.DefaultTimeZone, "IANA zone timestamps are rendered in")
	flags.StringVar(&f.createTableOptions, "create-table-options", "",
		"SQL appended to CREATE TABLE, e.g. \"WITH (fillfactor = 90)\"")
	flags.StringToStringVar(&f.columnTypes, "column-type", nil,
		"Override a column's SQL type (can be specified multiple times)\n"+
			"Example: --column-type amount=numeric(18,4)")
	flags.StringVar(&f.isolationLevel, "isolation-level", "",
		"Isolation level for transaction atomicity (default: the server's default_transaction_isolation)")
	flags.IntVar(&f.parallelism, "parallelism", pgbulk.DefaultParallelism, "Number of partitions uploaded at once")
	flags.IntVar(&f.maxAttempts, "max-attempts", pgbulk.DefaultMaxTaskAttempts, "Attempts per partition before the load fails")
	flags.Float64Var(&f.connectRate, "connect-rate", 0, "Maximum task connections opened per second (0 = unlimited)")
	flags.StringVar(&f.spillDir, "spill-dir", "", "Directory for partition spill files (default: system temp dir)")
	flags.StringVar(&f.spillCompression, "spill-compression", string(pgbulk.CompressionNone), "Spill file compression: none|zstd")
	flags.DurationVar(&f.timeout, "timeout", 0,
		"Abort the load after this duration (0 = no limit)\n"+
			"Examples: 30m, 2h")

	flags.StringVar(&f.counter, "counter", string(pgbulk.CounterLocal),
		"Success counter backend: local|redis\n"+
			"Use redis when partition workers run in several processes")
	flags.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the redis counter, e.g. localhost:6379")
	flags.StringVar(&f.counterKey, "counter-key", "", "Redis key of the success counter (default: derived from the load id)")

	flags.StringVar(&f.format, "format", "", "Dataset format: parquet|jsonl")
	flags.StringVar(&f.url, "url", "",
		"Blob URL of the dataset objects; select a key prefix with ?prefix=\n"+
			"Example: s3://bucket?region=eu-west-1&prefix=exports/orders/")
	flags.StringArrayVar(&f.columns, "column", nil,
		"JSON-lines column as name:type, \"!\" suffix for NOT NULL (can be specified multiple times)\n"+
			"Example: --column id:bigint! --column price:decimal(12,2)")
	flags.StringToStringVar(&f.paths, "path", nil,
		"gjson path of a JSON-lines column (default: the column name)\n"+
			"Example: --path kind=payload.type")

	flags.BoolVar(&f.noProgress, "no-progress", false, "Do not draw a progress bar, log lines only")

	_ = cmd.RegisterFlagCompletionFunc("mode", completeFrom([]string{"replace", "append"}))
	_ = cmd.RegisterFlagCompletionFunc("atomicity", completeFrom([]string{"staging", "transaction"}))
	_ = cmd.RegisterFlagCompletionFunc("spill-compression", completeFrom([]string{"none", "zstd"}))
	_ = cmd.RegisterFlagCompletionFunc("counter", completeFrom([]string{"local", "redis"}))
	_ = cmd.RegisterFlagCompletionFunc("format", completeFrom([]string{"parquet", "jsonl"}))
}

// buildLoadConfig starts from the project file and applies every flag the
// user set explicitly. A table argument overrides load.table.
func buildLoadConfig(cmd *cobra.Command, f *loadFlagValues, projectCfg *config.ProjectConfig, args []string) (pgbulk.LoadConfig, source.Options, error) {
	var cfg pgbulk.LoadConfig
	var src source.Options
	if projectCfg != nil {
		var err error
		if cfg, err = projectCfg.LoadConfig(); err != nil {
			return cfg, src, err
		}
		src = source.Options{
			Format:  projectCfg.Source.Format,
			URL:     projectCfg.Source.URL,
			Columns: projectCfg.Source.Columns,
			Paths:   projectCfg.Source.Paths,
		}
	}

	changed := cmd.Flags().Changed
	if len(args) > 0 {
		cfg.Table = args[0]
	}
	if changed("mode") {
		switch f.mode {
		case "replace":
			cfg.Append = false
		case "append":
			cfg.Append = true
		default:
			return cfg, src, fmt.Errorf("--mode %q is not one of replace, append: %w", f.mode, pgbulk.ErrInvalidConfig)
		}
	}
	if changed("atomicity") {
		cfg.Atomicity = pgbulk.Atomicity(f.atomicity)
	}
	if changed("delimiter") {
		cfg.Delimiter = f.delimiter
	}
	if changed("date-format") {
		cfg.DateFormat = f.dateFormat
	}
	if changed("timestamp-format") {
		cfg.TimestampFormat = f.timestampFormat
	}
	if changed("time-zone") {
		cfg.TimeZone = f.timeZone
	}
	if changed("create-table-options") {
		cfg.CreateTableOptions = f.createTableOptions
	}
	if changed("column-type") {
		merged := make(map[string]string, len(cfg.ColumnTypes)+len(f.columnTypes))
		for k, v := range cfg.ColumnTypes {
			merged[k] = v
		}
		for k, v := range f.columnTypes {
			merged[k] = v
		}
		cfg.ColumnTypes = merged
	}
	if changed("isolation-level") {
		cfg.IsolationLevel = f.isolationLevel
	}
	if changed("parallelism") {
		cfg.Parallelism = f.parallelism
	}
	if changed("max-attempts") {
		cfg.MaxTaskAttempts = f.maxAttempts
	}
	if changed("connect-rate") {
		cfg.ConnectRate = f.connectRate
	}
	if changed("spill-dir") {
		cfg.SpillDir = f.spillDir
	}
	if changed("spill-compression") {
		cfg.SpillCompression = pgbulk.Compression(f.spillCompression)
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if changed("counter") {
		cfg.Counter.Backend = pgbulk.CounterBackend(f.counter)
	}
	if changed("redis-addr") {
		cfg.Counter.RedisAddr = f.redisAddr
	}
	if changed("counter-key") {
		cfg.Counter.Key = f.counterKey
	}

	if changed("format") {
		src.Format = f.format
	}
	if changed("url") {
		src.URL = f.url
	}
	if changed("column") {
		src.Columns = f.columns
	}
	if changed("path") {
		src.Paths = f.paths
	}

	if cfg.Table == "" {
		return cfg, src, fmt.Errorf("target table is required\n"+
			"Provide via:\n"+
			"  1. Argument: pgbulk load analytics.orders ...\n"+
			"  2. %s: load.table: analytics.orders: %w", defaultConfigFile, pgbulk.ErrInvalidConfig)
	}
	return cfg, src, nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	verbose := getVerboseFlag(cmd)

	projectCfg, err := loadProjectConfig(cmd)
	if err != nil {
		return err
	}
	cfg, srcOpts, err := buildLoadConfig(cmd, &loadFlags, projectCfg, args)
	if err != nil {
		return err
	}
	cfg.Verbose = verbose

	connConfig, err := resolveConnection(loadFlags.conn, projectCfg)
	if err != nil {
		return err
	}
	if verbose {
		logConnectionVerbose(connConfig)
	}
	applyConnection(&cfg, connConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\n[INTERRUPT] Received interrupt signal, cancelling load...")
			cancel()
		case <-ctx.Done():
		}
	}()

	ds, err := source.Open(ctx, srcOpts)
	if err != nil {
		return err
	}
	defer ds.Close()

	var logger pgbulk.Logger = logging.NewConsoleLogger(verbose)
	var observer pgbulk.LoadObserver
	if !loadFlags.noProgress && tui.IsInteractive() {
		progress := tui.NewProgress(os.Stderr, verbose)
		logger, observer = progress, progress
	}

	loader := services.NewLoadService(db.NewConnector, manager.New(), logger, observer)
	res, err := loader.Load(ctx, ds, cfg)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	// Machine-parseable result to stdout
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d rows\t%d partitions\t%d in table\t%v\n",
		res.Table, res.Mode(), res.Rows, res.Partitions, res.TableRows, res.Duration.Round(time.Millisecond))
	return nil
}
