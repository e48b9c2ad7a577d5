package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/internal/retry"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

const (
	// DefaultMaxConns is used when no load parallelism is known.
	DefaultMaxConns = pgbulk.DefaultParallelism + 1

	// DefaultMaxConnIdleTime keeps idle connections around between partition attempts.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// Option configures a connector.
type Option func(*options)

type options struct {
	maxConns int32
	logger   pgbulk.Logger
}

// WithMaxConns caps the pool size. Each running partition task holds one
// connection for its whole attempt, and the coordinator needs one more.
func WithMaxConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = int32(n)
		}
	}
}

// WithLogger routes server notices and retry messages to logger.
func WithLogger(logger pgbulk.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{maxConns: DefaultMaxConns, logger: logging.NewNullLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) configurePool(poolConfig *pgxpool.Config) {
	poolConfig.MaxConns = o.maxConns
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	logger := o.logger
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("server %s: %s", strings.ToLower(notice.Severity), notice.Message)
	}
}

func newConnectExecutor(logger pgbulk.Logger) *retry.Executor {
	strategy := retry.NewExponentialBackoff(pgbulk.DefaultRetryMaxAttempts,
		retry.WithInitialDelay(pgbulk.DefaultRetryInitialDelay),
		retry.WithMaxDelay(pgbulk.DefaultRetryMaxDelay),
	)
	return retry.NewExecutor(retry.NewPostgreSQLErrorClassifier(), strategy).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Verbose("connection attempt %d failed, retrying in %v: %v", attempt, delay.Round(time.Millisecond), err)
		})
}

// openPool creates a pool from connStr and pings it.
func openPool(ctx context.Context, connStr string, cfg *pgbulk.ConnectionConfig, o options, tweak func(*pgxpool.Config)) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	o.configurePool(poolConfig)
	if tweak != nil {
		tweak(poolConfig)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapConnectionError(err, cfg.Host, cfg.Port, cfg.Database)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapConnectionError(err, cfg.Host, cfg.Port, cfg.Database)
	}
	return pool, nil
}

// StandardConnector connects with username and password, retrying transient failures.
type StandardConnector struct {
	config        *pgbulk.ConnectionConfig
	opts          options
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a StandardConnector for config.
func NewStandardConnector(config *pgbulk.ConnectionConfig, opts ...Option) *StandardConnector {
	o := newOptions(opts)
	return &StandardConnector{
		config:        config,
		opts:          o,
		retryExecutor: newConnectExecutor(o.logger),
	}
}

// Connect establishes a connection pool.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	connStr := BuildConnectionString(c.config)

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context, _ int) error {
		var err error
		pool, err = openPool(ctx, connStr, c.config, c.opts, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// NewConnector returns the Connector for config.AuthMethod.
func NewConnector(config *pgbulk.ConnectionConfig, opts ...Option) (pgbulk.Connector, error) {
	switch config.AuthMethod {
	case pgbulk.AuthMethodStandard:
		return NewStandardConnector(config, opts...), nil
	case pgbulk.AuthMethodAWSIAM:
		return newAWSConnector(config, opts)
	case pgbulk.AuthMethodGoogleIAM:
		return newGoogleConnector(config, opts)
	case pgbulk.AuthMethodAzureEntraID:
		return newAzureConnector(config, opts)
	default:
		return nil, fmt.Errorf("auth method %v: %w", config.AuthMethod, pgbulk.ErrUnsupportedAuthMethod)
	}
}

func newAWSConnector(config *pgbulk.ConnectionConfig, opts []Option) (pgbulk.Connector, error) {
	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)
	provider, err := NewAWSIAMTokenProvider(endpoint, config.AWSRegion, config.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, pgbulk.ErrInvalidConfig)
	}
	return NewTokenBasedConnector(config, provider, "AWS IAM", opts...), nil
}

func newGoogleConnector(config *pgbulk.ConnectionConfig, opts []Option) (pgbulk.Connector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires --google-instance (project:region:instance): %w", pgbulk.ErrInvalidConfig)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires a username: %w", pgbulk.ErrInvalidConfig)
	}
	return NewGoogleCloudSQLConnector(config, config.GoogleInstance, opts...), nil
}

// newAzureConnector uses a service principal when tenant, client and secret
// are all set, otherwise the DefaultAzureCredential chain.
func newAzureConnector(config *pgbulk.ConnectionConfig, opts []Option) (pgbulk.Connector, error) {
	var provider TokenProvider
	var err error
	if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
		provider, err = NewAzureServicePrincipalProvider(config.AzureTenantID, config.AzureClientID, config.AzureClientSecret)
	} else {
		provider, err = NewAzureDefaultCredentialProvider()
	}
	if err != nil {
		return nil, err
	}
	return NewTokenBasedConnector(config, provider, "Azure", opts...), nil
}

// wrapConnectionError adds a hint for common connection failures.
// The result wraps both err and pgbulk.ErrConnectionFailed.
func wrapConnectionError(err error, host string, port int, database string) error {
	msg := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	var hint string
	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused"):
		hint = fmt.Sprintf("connection refused to %s (is PostgreSQL running? check: pg_isready -h %s -p %d)", addr, host, port)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "no host"):
		hint = fmt.Sprintf("cannot resolve host %q", host)
	case strings.Contains(msg, "password authentication failed"):
		hint = fmt.Sprintf("password authentication failed for database %q (check $PGPASSWORD or the connection string)", database)
	case strings.Contains(msg, "does not exist"):
		hint = fmt.Sprintf("database %q does not exist", database)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		hint = fmt.Sprintf("connection timed out to %s", addr)
	case strings.Contains(msg, "ssl") || strings.Contains(msg, "tls"):
		hint = "SSL/TLS connection error (check --sslmode)"
	case strings.Contains(msg, "too many connections"):
		hint = fmt.Sprintf("too many connections to database %q (lower --parallelism or raise max_connections)", database)
	default:
		hint = "failed to connect to database"
	}
	return fmt.Errorf("%s: %w: %w", hint, pgbulk.ErrConnectionFailed, err)
}
