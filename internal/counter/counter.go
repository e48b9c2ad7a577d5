// Package counter provides the shared success counter of a load.
//
// A Local counter is an in-memory atomic. A Redis counter keeps the count
// under a per-load key, so a running load can be followed from outside the
// process with GET on the key the load logs.
package counter

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// Counter is a pgbulk.Counter that owns resources.
type Counter interface {
	pgbulk.Counter

	// Key is the Redis key holding the count. Empty for local counters.
	Key() string

	Close() error
}

// New opens the counter selected by cfg, starting at zero.
// loadID names the Redis key when cfg.Key is empty.
func New(ctx context.Context, cfg pgbulk.CounterConfig, loadID string) (Counter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case pgbulk.CounterRedis:
		key := cfg.Key
		if key == "" {
			key = pgbulk.DefaultCounterKeyPrefix + loadID
		}
		return NewRedis(ctx, cfg.RedisAddr, key)
	default:
		return NewLocal(), nil
	}
}

// Local is an in-process counter.
type Local struct {
	n atomic.Int64
}

// NewLocal returns a counter at zero.
func NewLocal() *Local {
	return &Local{}
}

func (c *Local) Increment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("increment success counter: %w", err)
	}
	c.n.Add(1)
	return nil
}

func (c *Local) Value(context.Context) (int64, error) {
	return c.n.Load(), nil
}

func (c *Local) Key() string { return "" }

func (c *Local) Close() error { return nil }
