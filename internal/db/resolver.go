package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vvka-141/pgbulk/internal/config"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// GranularConnFlags holds the libpq-style connection flags (-h, -p, -U, -d).
// There is no password flag; use $PGPASSWORD or a connection string.
type GranularConnFlags struct {
	Host     string
	Port     int
	Username string
	Database string
	SSLMode  string
}

// IsEmpty reports whether no server-selecting flag was given. Database is
// excluded because it may override the database of a connection string.
func (g *GranularConnFlags) IsEmpty() bool {
	return g.Host == "" && g.Port == 0 && g.Username == "" && g.SSLMode == ""
}

// CloudFlags select and configure cloud authentication.
// The Azure client secret is only read from AZURE_CLIENT_SECRET.
type CloudFlags struct {
	AuthMethod     string
	AzureTenantID  string
	AzureClientID  string
	AWSRegion      string
	GoogleInstance string
}

// EnvVars are the environment variables the resolver consults.
type EnvVars struct {
	PGHOST                   string
	PGPORT                   string
	PGUSER                   string
	PGPASSWORD               string
	PGDATABASE               string
	PGSSLMODE                string
	DATABASE_URL             string
	PGBULK_CONNECTION_STRING string

	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string
	AWS_REGION          string
}

// LoadFromEnvironment reads EnvVars from the process environment.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		PGHOST:                   os.Getenv("PGHOST"),
		PGPORT:                   os.Getenv("PGPORT"),
		PGUSER:                   os.Getenv("PGUSER"),
		PGPASSWORD:               os.Getenv("PGPASSWORD"),
		PGDATABASE:               os.Getenv("PGDATABASE"),
		PGSSLMODE:                os.Getenv("PGSSLMODE"),
		DATABASE_URL:             os.Getenv("DATABASE_URL"),
		PGBULK_CONNECTION_STRING: os.Getenv("PGBULK_CONNECTION_STRING"),
		AZURE_TENANT_ID:          os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:          os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET:      os.Getenv("AZURE_CLIENT_SECRET"),
		AWS_REGION:               os.Getenv("AWS_REGION"),
	}
}

// ResolveConnectionParams resolves the connection with PostgreSQL-style precedence:
//
//  1. --connection
//  2. $PGBULK_CONNECTION_STRING, then $DATABASE_URL, when no granular flag is set
//  3. granular flags, then PG* variables, then the project file, then defaults
//
// A --database flag overrides the database of a connection string.
// Combining --connection with granular server flags is an error.
//
// The auth method comes from --auth, then the project file; when neither names
// one and Azure credentials are present, Azure Entra ID is selected.
func ResolveConnectionParams(
	connStringFlag string,
	granular *GranularConnFlags,
	cloud *CloudFlags,
	env *EnvVars,
	projectConfig *config.ProjectConfig,
) (*pgbulk.ConnectionConfig, error) {
	if granular == nil {
		granular = &GranularConnFlags{}
	}
	if cloud == nil {
		cloud = &CloudFlags{}
	}
	if env == nil {
		env = &EnvVars{}
	}
	var file config.ConnectionConfig
	if projectConfig != nil {
		file = projectConfig.Connection
	}

	if connStringFlag != "" && !granular.IsEmpty() {
		return nil, fmt.Errorf("cannot specify both --connection and granular flags (-h, -p, -U, --sslmode): %w", pgbulk.ErrInvalidConfig)
	}

	var cfg *pgbulk.ConnectionConfig
	var err error
	switch {
	case connStringFlag != "":
		cfg, err = resolveFromConnectionString(connStringFlag, env)
	case granular.IsEmpty() && env.PGBULK_CONNECTION_STRING != "":
		cfg, err = resolveFromConnectionString(env.PGBULK_CONNECTION_STRING, env)
	case granular.IsEmpty() && env.DATABASE_URL != "":
		cfg, err = resolveFromConnectionString(env.DATABASE_URL, env)
	default:
		cfg, err = resolveFromGranularParams(granular, env, file)
	}
	if err != nil {
		return nil, err
	}
	if granular.Database != "" {
		cfg.Database = granular.Database
	}

	if err := applyCloudAuth(cfg, cloud, env, file); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveFromConnectionString(connStr string, env *EnvVars) (*pgbulk.ConnectionConfig, error) {
	cfg, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w: %w", err, pgbulk.ErrInvalidConfig)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = firstNonEmpty(env.PGSSLMODE, "prefer")
	}
	if cfg.Password == "" {
		cfg.Password = env.PGPASSWORD
	}
	return cfg, nil
}

func resolveFromGranularParams(flags *GranularConnFlags, env *EnvVars, file config.ConnectionConfig) (*pgbulk.ConnectionConfig, error) {
	cfg := &pgbulk.ConnectionConfig{
		AuthMethod:       pgbulk.AuthMethodStandard,
		AdditionalParams: make(map[string]string),
		Host:             firstNonEmpty(flags.Host, env.PGHOST, file.Host, "localhost"),
		Username:         firstNonEmpty(flags.Username, env.PGUSER, file.Username, os.Getenv("USER"), os.Getenv("USERNAME")),
		Password:         env.PGPASSWORD,
		Database:         firstNonEmpty(flags.Database, env.PGDATABASE, file.Database, "postgres"),
		SSLMode:          firstNonEmpty(flags.SSLMode, env.PGSSLMODE, file.SSLMode, "prefer"),
	}

	switch {
	case flags.Port != 0:
		cfg.Port = flags.Port
	case env.PGPORT != "":
		port, err := strconv.Atoi(env.PGPORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $PGPORT value %q: must be an integer: %w", env.PGPORT, pgbulk.ErrInvalidConfig)
		}
		cfg.Port = port
	case file.Port != 0:
		cfg.Port = file.Port
	default:
		cfg.Port = 5432
	}
	return cfg, nil
}

func applyCloudAuth(cfg *pgbulk.ConnectionConfig, cloud *CloudFlags, env *EnvVars, file config.ConnectionConfig) error {
	cfg.AzureTenantID = firstNonEmpty(cloud.AzureTenantID, env.AZURE_TENANT_ID, file.AzureTenantID)
	cfg.AzureClientID = firstNonEmpty(cloud.AzureClientID, env.AZURE_CLIENT_ID, file.AzureClientID)
	cfg.AzureClientSecret = env.AZURE_CLIENT_SECRET
	cfg.AWSRegion = firstNonEmpty(cloud.AWSRegion, env.AWS_REGION, file.AWSRegion)
	cfg.GoogleInstance = firstNonEmpty(cloud.GoogleInstance, file.GoogleInstance)

	name := firstNonEmpty(cloud.AuthMethod, file.AuthMethod)
	if name == "" {
		if cfg.AzureTenantID != "" || cfg.AzureClientID != "" {
			cfg.AuthMethod = pgbulk.AuthMethodAzureEntraID
		}
		return nil
	}

	method, err := pgbulk.ParseAuthMethod(name)
	if err != nil {
		return err
	}
	cfg.AuthMethod = method
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
