package pgbulk

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// LoadConfig contains all options of a bulk-load operation.
// It is supplied once and treated as read-only for the whole load.
type LoadConfig struct {
	// Table is the target table, optionally schema-qualified ("sales.orders").
	Table string

	// Append writes straight into the existing target instead of replacing it.
	Append bool

	// Atomicity selects how partition writes are made atomic.
	// AtomicityStaging leaves the target unchanged when a replace fails.
	// AtomicityTransaction in replace mode drops and recreates the target
	// before any partition runs, so a failed load leaves it empty or
	// partially loaded.
	Atomicity Atomicity

	// Delimiter is the single-character field separator of the COPY stream.
	Delimiter string

	// DateFormat and TimestampFormat are Go time layouts.
	DateFormat      string
	TimestampFormat string

	// TimeZone is the IANA location timestamps are rendered in.
	TimeZone string

	// CreateTableOptions is appended verbatim to CREATE TABLE, e.g. "WITH (fillfactor=90)".
	CreateTableOptions string

	// ColumnTypes overrides the SQL type of individual columns in CREATE TABLE.
	ColumnTypes map[string]string

	// IsolationLevel is used by transaction atomicity. Empty means the server default.
	IsolationLevel string

	// Parallelism is the number of partitions uploading at once.
	Parallelism int

	// MaxTaskAttempts is how many times a partition task runs before it is given up.
	MaxTaskAttempts int

	// ConnectRate limits new task connections per second. Zero means unlimited.
	ConnectRate float64

	// SpillDir is where partition spill files are written. Empty means os.TempDir().
	SpillDir string

	// SpillCompression is "none" or "zstd".
	SpillCompression Compression

	// ConnectionString is the PostgreSQL connection string (URI or ADO.NET format).
	ConnectionString string

	// AuthMethod indicates the authentication mechanism to use.
	AuthMethod AuthMethod

	// Azure Entra ID parameters (AuthMethodAzureEntraID).
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// AWSRegion is used by AuthMethodAWSIAM.
	AWSRegion string

	// GoogleInstance is the Cloud SQL instance connection name (project:region:instance).
	GoogleInstance string

	// Counter selects the success counter backend.
	Counter CounterConfig

	// Timeout bounds the whole load. Zero means no timeout.
	Timeout time.Duration

	// Verbose enables detailed logging.
	Verbose bool
}

// ApplyDefaults fills unset options with their defaults.
// The delimiter is left alone: an empty delimiter is a configuration error,
// the CLI supplies DefaultDelimiter itself.
func (c *LoadConfig) ApplyDefaults() {
	if c.DateFormat == "" {
		c.DateFormat = DefaultDateFormat
	}
	if c.TimestampFormat == "" {
		c.TimestampFormat = DefaultTimestampFormat
	}
	if c.TimeZone == "" {
		c.TimeZone = DefaultTimeZone
	}
	if c.Atomicity == "" {
		c.Atomicity = AtomicityStaging
	}
	if c.Parallelism == 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.MaxTaskAttempts == 0 {
		c.MaxTaskAttempts = DefaultMaxTaskAttempts
	}
	if c.SpillCompression == "" {
		c.SpillCompression = CompressionNone
	}
	if c.Counter.Backend == "" {
		c.Counter.Backend = CounterLocal
	}
}

// Validate checks the configuration. The delimiter is checked first and on its
// own, so a malformed delimiter is reported before anything else is looked at.
// Remaining problems are returned together as a multi-error.
func (c *LoadConfig) Validate() error {
	if _, err := ParseDelimiter(c.Delimiter); err != nil {
		return err
	}

	var errs []error

	if strings.TrimSpace(c.Table) == "" {
		errs = append(errs, fmt.Errorf("Table is required: %w", ErrInvalidConfig))
	} else if _, _, err := SplitTableName(c.Table); err != nil {
		errs = append(errs, err)
	}

	if c.ConnectionString == "" {
		errs = append(errs, fmt.Errorf("ConnectionString is required: %w", ErrInvalidConfig))
	}

	if !c.Atomicity.IsValid() {
		errs = append(errs, fmt.Errorf("atomicity %q is not one of staging, transaction: %w", c.Atomicity, ErrInvalidConfig))
	}

	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1: %w", ErrInvalidConfig))
	}

	if c.MaxTaskAttempts < 1 {
		errs = append(errs, fmt.Errorf("max task attempts must be at least 1: %w", ErrInvalidConfig))
	}

	if c.ConnectRate < 0 {
		errs = append(errs, fmt.Errorf("connect rate cannot be negative: %w", ErrInvalidConfig))
	}

	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative: %w", ErrInvalidConfig))
	}

	if c.DateFormat == "" || c.TimestampFormat == "" {
		errs = append(errs, fmt.Errorf("date and timestamp formats are required: %w", ErrInvalidConfig))
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("time zone %q: %v: %w", c.TimeZone, err, ErrInvalidConfig))
	}

	if !c.SpillCompression.IsValid() {
		errs = append(errs, fmt.Errorf("spill compression %q is not one of none, zstd: %w", c.SpillCompression, ErrInvalidConfig))
	}

	if c.IsolationLevel != "" {
		if _, err := ParseIsolationLevel(c.IsolationLevel); err != nil {
			errs = append(errs, err)
		}
	}

	if !c.AuthMethod.IsValid() {
		errs = append(errs, fmt.Errorf("auth method %s: %w", c.AuthMethod, ErrUnsupportedAuthMethod))
	}

	if err := c.Counter.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// FormatOptions derives the value formatting options. Call after Validate.
func (c *LoadConfig) FormatOptions() (FormatOptions, error) {
	delim, err := ParseDelimiter(c.Delimiter)
	if err != nil {
		return FormatOptions{}, err
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return FormatOptions{}, fmt.Errorf("time zone %q: %v: %w", c.TimeZone, err, ErrInvalidConfig)
	}
	return FormatOptions{
		Delimiter:       delim,
		DateFormat:      c.DateFormat,
		TimestampFormat: c.TimestampFormat,
		Location:        loc,
	}, nil
}

// ParseDelimiter returns the delimiter rune of s.
// s must be exactly one character, and one the server accepts as a COPY text
// delimiter: single-byte, not NUL, not a line break, not a character that
// can start a backslash escape, and not part of NullToken.
func ParseDelimiter(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter %q has %d characters: %w: %w",
			s, utf8.RuneCountInString(s), ErrInvalidDelimiter, ErrInvalidConfig)
	}
	r, _ := utf8.DecodeRuneInString(s)
	switch {
	case r == 0 || r == '\n' || r == '\r' || r == '\\':
		return 0, fmt.Errorf("delimiter %q is reserved by the COPY text format: %w: %w", s, ErrInvalidDelimiter, ErrInvalidConfig)
	case strings.ContainsRune(NullToken, r):
		return 0, fmt.Errorf("delimiter %q appears in the NULL token %q: %w: %w", s, NullToken, ErrInvalidDelimiter, ErrInvalidConfig)
	case strings.ContainsRune(escapeStarters, r):
		return 0, fmt.Errorf("delimiter %q is ambiguous after a backslash: %w: %w", s, ErrInvalidDelimiter, ErrInvalidConfig)
	case r >= utf8.RuneSelf:
		return 0, fmt.Errorf("delimiter %q must be a single-byte character: %w: %w", s, ErrInvalidDelimiter, ErrInvalidConfig)
	}
	return r, nil
}

// escapeStarters are rejected as delimiters by the server's COPY text reader.
const escapeStarters = ".abcdefghijklmnopqrstuvwxyz0123456789"

// SplitTableName splits "schema.table" into its parts. Schema is empty when unqualified.
func SplitTableName(name string) (schema, table string, err error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	switch len(parts) {
	case 1:
		table = parts[0]
	case 2:
		schema, table = parts[0], parts[1]
	default:
		return "", "", fmt.Errorf("table %q must be table or schema.table: %w", name, ErrInvalidConfig)
	}
	if table == "" || (len(parts) == 2 && schema == "") {
		return "", "", fmt.Errorf("table %q has an empty part: %w", name, ErrInvalidConfig)
	}
	return schema, table, nil
}

// Atomicity selects the partition write strategy.
type Atomicity string

const (
	// AtomicityStaging loads into a staging table and swaps it in once every partition succeeded.
	AtomicityStaging Atomicity = "staging"

	// AtomicityTransaction wraps each partition's COPY in its own transaction.
	// Whole-load atomicity is not provided: committed partitions stay visible on failure.
	AtomicityTransaction Atomicity = "transaction"
)

// IsValid reports whether a is a known strategy.
func (a Atomicity) IsValid() bool {
	return a == AtomicityStaging || a == AtomicityTransaction
}

// Compression of partition spill files.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// IsValid reports whether c is a known compression.
func (c Compression) IsValid() bool {
	return c == CompressionNone || c == CompressionZstd
}

var isolationLevels = map[string]string{
	"serializable":     "SERIALIZABLE",
	"repeatable read":  "REPEATABLE READ",
	"read committed":   "READ COMMITTED",
	"read uncommitted": "READ UNCOMMITTED",
}

// ParseIsolationLevel normalizes an isolation level name to its SQL spelling.
// Underscores and dashes are accepted in place of spaces.
func ParseIsolationLevel(s string) (string, error) {
	key := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s)))
	level, ok := isolationLevels[key]
	if !ok {
		return "", fmt.Errorf("isolation level %q: %w", s, ErrInvalidConfig)
	}
	return level, nil
}

// CounterBackend selects where the success counter lives.
type CounterBackend string

const (
	// CounterLocal keeps the counter in process memory.
	CounterLocal CounterBackend = "local"

	// CounterRedis keeps the counter in Redis under a per-load key, readable from outside the process.
	CounterRedis CounterBackend = "redis"
)

// CounterConfig configures the success counter.
type CounterConfig struct {
	Backend CounterBackend

	// RedisAddr is host:port of the Redis server.
	RedisAddr string

	// Key names the counter. Empty means a fresh key per load.
	Key string
}

// Validate checks the counter configuration.
func (c CounterConfig) Validate() error {
	switch c.Backend {
	case CounterLocal:
		return nil
	case CounterRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis counter requires an address: %w", ErrInvalidConfig)
		}
		return nil
	default:
		return fmt.Errorf("counter backend %q is not one of local, redis: %w", c.Backend, ErrInvalidConfig)
	}
}

// ConnectionConfig represents parsed connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	AuthMethod AuthMethod

	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	// Azure Entra ID parameters. With all three set a service principal is used,
	// otherwise the DefaultAzureCredential chain.
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	AWSRegion      string
	GoogleInstance string
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "Standard"
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodStandard && a <= AuthMethodAzureEntraID
}

// ParseAuthMethod maps a CLI/config name to an AuthMethod.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "password":
		return AuthMethodStandard, nil
	case "aws", "aws-iam":
		return AuthMethodAWSIAM, nil
	case "google", "google-iam", "gcp":
		return AuthMethodGoogleIAM, nil
	case "azure", "azure-entra", "entra":
		return AuthMethodAzureEntraID, nil
	default:
		return AuthMethodStandard, fmt.Errorf("%q: %w", s, ErrUnsupportedAuthMethod)
	}
}
