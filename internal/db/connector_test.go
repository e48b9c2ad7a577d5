package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

type mockTokenProvider struct {
	token     string
	expiresOn time.Time
	err       error
	calls     int
}

func (m *mockTokenProvider) GetToken(context.Context) (string, time.Time, error) {
	m.calls++
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	return m.token, m.expiresOn, nil
}

func (m *mockTokenProvider) String() string { return "mockTokenProvider" }

func TestNewOptions(t *testing.T) {
	o := newOptions(nil)
	assert.Equal(t, int32(DefaultMaxConns), o.maxConns)
	assert.NotNil(t, o.logger)

	logger := logging.NewNullLogger()
	o = newOptions([]Option{WithMaxConns(9), WithLogger(logger), WithMaxConns(0), WithLogger(nil)})
	assert.Equal(t, int32(9), o.maxConns)
	assert.Same(t, logger, o.logger)
}

func TestConfigurePool(t *testing.T) {
	poolConfig, err := pgxpool.ParseConfig("postgresql://localhost:5432/db")
	require.NoError(t, err)

	newOptions([]Option{WithMaxConns(7)}).configurePool(poolConfig)

	assert.Equal(t, int32(7), poolConfig.MaxConns)
	assert.Equal(t, DefaultMaxConnIdleTime, poolConfig.MaxConnIdleTime)
	assert.NotNil(t, poolConfig.ConnConfig.OnNotice)
}

func TestNewConnector_SelectsByAuthMethod(t *testing.T) {
	t.Run("standard", func(t *testing.T) {
		c, err := NewConnector(&pgbulk.ConnectionConfig{Host: "localhost", Port: 5432})
		require.NoError(t, err)
		assert.IsType(t, &StandardConnector{}, c)
	})

	t.Run("aws", func(t *testing.T) {
		c, err := NewConnector(&pgbulk.ConnectionConfig{
			Host: "db.rds.amazonaws.com", Port: 5432, Username: "loader",
			AuthMethod: pgbulk.AuthMethodAWSIAM, AWSRegion: "eu-west-1",
		})
		require.NoError(t, err)
		assert.IsType(t, &TokenBasedConnector{}, c)
	})

	t.Run("aws without region", func(t *testing.T) {
		_, err := NewConnector(&pgbulk.ConnectionConfig{
			Host: "db", Port: 5432, Username: "loader", AuthMethod: pgbulk.AuthMethodAWSIAM,
		})
		assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
	})

	t.Run("google", func(t *testing.T) {
		c, err := NewConnector(&pgbulk.ConnectionConfig{
			Username: "loader@project.iam", AuthMethod: pgbulk.AuthMethodGoogleIAM,
			GoogleInstance: "project:region:instance",
		})
		require.NoError(t, err)
		assert.IsType(t, &GoogleCloudSQLConnector{}, c)
	})

	t.Run("google without instance", func(t *testing.T) {
		_, err := NewConnector(&pgbulk.ConnectionConfig{Username: "u", AuthMethod: pgbulk.AuthMethodGoogleIAM})
		assert.ErrorIs(t, err, pgbulk.ErrInvalidConfig)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewConnector(&pgbulk.ConnectionConfig{AuthMethod: pgbulk.AuthMethod(42)})
		assert.ErrorIs(t, err, pgbulk.ErrUnsupportedAuthMethod)
	})
}

func TestTokenBasedConnector_TokenError(t *testing.T) {
	provider := &mockTokenProvider{err: errors.New("expired credentials")}
	c := NewTokenBasedConnector(&pgbulk.ConnectionConfig{Host: "localhost", Port: 5432}, provider, "Mock")

	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire Mock token")
	assert.Equal(t, 1, provider.calls, "token errors are not transient")
}

func TestTokenBasedConnector_RefreshPassword(t *testing.T) {
	provider := &mockTokenProvider{token: "fresh-token", expiresOn: time.Now().Add(time.Hour)}
	c := NewTokenBasedConnector(&pgbulk.ConnectionConfig{Host: "localhost", Port: 5432}, provider, "Mock")

	poolConfig, err := pgxpool.ParseConfig("postgresql://localhost:5432/db")
	require.NoError(t, err)
	c.refreshPassword(poolConfig)
	require.NotNil(t, poolConfig.BeforeConnect)

	require.NoError(t, poolConfig.BeforeConnect(context.Background(), poolConfig.ConnConfig))
	assert.Equal(t, "fresh-token", poolConfig.ConnConfig.Password)
}

func TestNewAWSIAMTokenProvider_Validation(t *testing.T) {
	_, err := NewAWSIAMTokenProvider("", "us-east-1", "u")
	assert.Error(t, err)
	_, err = NewAWSIAMTokenProvider("h:5432", "", "u")
	assert.Error(t, err)
	_, err = NewAWSIAMTokenProvider("h:5432", "us-east-1", "")
	assert.Error(t, err)

	p, err := NewAWSIAMTokenProvider("h:5432", "us-east-1", "loader")
	require.NoError(t, err)
	assert.Equal(t, "AWSIAMTokenProvider(endpoint=h:5432, region=us-east-1, user=loader)", p.String())
}

func TestNewAzureServicePrincipalProvider_RequiresAllCredentials(t *testing.T) {
	_, err := NewAzureServicePrincipalProvider("tenant", "", "secret")
	assert.Error(t, err)
}
