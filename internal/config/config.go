// Package config reads the pgbulk.yaml project file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type LoadSection struct {
	Table              string            `yaml:"table"`
	Mode               string            `yaml:"mode"`
	Atomicity          string            `yaml:"atomicity"`
	Delimiter          string            `yaml:"delimiter"`
	DateFormat         string            `yaml:"date_format"`
	TimestampFormat    string            `yaml:"timestamp_format"`
	TimeZone           string            `yaml:"time_zone"`
	CreateTableOptions string            `yaml:"create_table_options"`
	ColumnTypes        map[string]string `yaml:"column_types"`
	IsolationLevel     string            `yaml:"isolation_level"`
	Parallelism        int               `yaml:"parallelism"`
	MaxTaskAttempts    int               `yaml:"max_task_attempts"`
	ConnectRate        float64           `yaml:"connect_rate"`
	SpillDir           string            `yaml:"spill_dir"`
	SpillCompression   string            `yaml:"spill_compression"`
	Timeout            string            `yaml:"timeout"`
}

type SourceSection struct {
	// Format is "parquet" or "jsonl".
	Format string `yaml:"format"`

	// URL is a gocloud blob URL. A key prefix is given with the prefix
	// parameter, e.g. s3://bucket?region=eu-west-1&prefix=exports/orders/.
	URL string `yaml:"url"`

	// Columns are "name:type" specs; required for jsonl.
	Columns []string `yaml:"columns"`

	// Paths maps a column to a gjson path inside each line. Defaults to the column name.
	Paths map[string]string `yaml:"paths"`
}

type CounterSection struct {
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	Key       string `yaml:"key"`
}

type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Load       LoadSection      `yaml:"load"`
	Source     SourceSection    `yaml:"source"`
	Counter    CounterSection   `yaml:"counter"`
}

const ConfigFileName = pgbulk.DefaultConfigFileName

// Load reads ConfigFileName from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a project file from an explicit path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, err, pgbulk.ErrInvalidConfig)
	}
	return &cfg, nil
}

// LoadConfig converts the load and counter sections into load options.
// The connection string is resolved separately.
func (p *ProjectConfig) LoadConfig() (pgbulk.LoadConfig, error) {
	l := p.Load
	cfg := pgbulk.LoadConfig{
		Table:              l.Table,
		Atomicity:          pgbulk.Atomicity(l.Atomicity),
		Delimiter:          l.Delimiter,
		DateFormat:         l.DateFormat,
		TimestampFormat:    l.TimestampFormat,
		TimeZone:           l.TimeZone,
		CreateTableOptions: l.CreateTableOptions,
		ColumnTypes:        l.ColumnTypes,
		IsolationLevel:     l.IsolationLevel,
		Parallelism:        l.Parallelism,
		MaxTaskAttempts:    l.MaxTaskAttempts,
		ConnectRate:        l.ConnectRate,
		SpillDir:           l.SpillDir,
		SpillCompression:   pgbulk.Compression(l.SpillCompression),
		Counter: pgbulk.CounterConfig{
			Backend:   pgbulk.CounterBackend(p.Counter.Backend),
			RedisAddr: p.Counter.RedisAddr,
			Key:       p.Counter.Key,
		},
	}

	switch l.Mode {
	case "", "replace":
	case "append":
		cfg.Append = true
	default:
		return cfg, fmt.Errorf("load.mode %q is not one of replace, append: %w", l.Mode, pgbulk.ErrInvalidConfig)
	}

	if l.Timeout != "" {
		d, err := time.ParseDuration(l.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("load.timeout %q: %w", l.Timeout, pgbulk.ErrInvalidConfig)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}
