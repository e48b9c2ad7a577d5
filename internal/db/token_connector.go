package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/pgbulk/internal/retry"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// tokenExpiryWarning is how close to expiry a fresh token triggers a warning.
const tokenExpiryWarning = 5 * time.Minute

// TokenBasedConnector authenticates with a token from a TokenProvider used as the password.
// Each new pool connection fetches a fresh token, so long loads survive token expiry.
type TokenBasedConnector struct {
	config        *pgbulk.ConnectionConfig
	tokenProvider TokenProvider
	providerName  string
	opts          options
	retryExecutor *retry.Executor
}

// NewTokenBasedConnector creates a connector; providerName appears in messages.
func NewTokenBasedConnector(config *pgbulk.ConnectionConfig, tokenProvider TokenProvider, providerName string, opts ...Option) *TokenBasedConnector {
	o := newOptions(opts)
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		providerName:  providerName,
		opts:          o,
		retryExecutor: newConnectExecutor(o.logger),
	}
}

func (c *TokenBasedConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context, _ int) error {
		token, expiresOn, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire %s token: %w", c.providerName, err)
		}
		if left := time.Until(expiresOn); left < tokenExpiryWarning {
			c.opts.logger.Info("%s token expires in %v", c.providerName, left.Round(time.Second))
		}

		withToken := *c.config
		withToken.Password = token

		pool, err = openPool(ctx, BuildConnectionString(&withToken), c.config, c.opts, c.refreshPassword)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (c *TokenBasedConnector) refreshPassword(poolConfig *pgxpool.Config) {
	poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, _, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh %s token: %w", c.providerName, err)
		}
		cc.Password = token
		return nil
	}
}
