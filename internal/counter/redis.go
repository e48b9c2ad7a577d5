package counter

import (
	"context"
	"fmt"

	"github.com/mediocregopher/radix/v3"
)

// redisPoolSize bounds connections to Redis; increments are single round trips.
const redisPoolSize = 4

// Redis is a counter stored under one Redis key. The key lives for the
// duration of the load and is deleted on Close.
type Redis struct {
	pool *radix.Pool
	key  string
}

// NewRedis connects to addr and resets key to zero.
func NewRedis(ctx context.Context, addr, key string) (*Redis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pool, err := radix.NewPool("tcp", addr, redisPoolSize)
	if err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	if err := pool.Do(radix.Cmd(nil, "SET", key, "0")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reset success counter %s: %w", key, err)
	}
	return &Redis{pool: pool, key: key}, nil
}

func (c *Redis) Increment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("increment success counter: %w", err)
	}
	if err := c.pool.Do(radix.Cmd(nil, "INCR", c.key)); err != nil {
		return fmt.Errorf("increment success counter %s: %w", c.key, err)
	}
	return nil
}

func (c *Redis) Value(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	if err := c.pool.Do(radix.Cmd(&n, "GET", c.key)); err != nil {
		return 0, fmt.Errorf("read success counter %s: %w", c.key, err)
	}
	return n, nil
}

func (c *Redis) Key() string { return c.key }

// Close deletes the key and closes the pool.
func (c *Redis) Close() error {
	delErr := c.pool.Do(radix.Cmd(nil, "DEL", c.key))
	if err := c.pool.Close(); err != nil {
		return err
	}
	if delErr != nil {
		return fmt.Errorf("delete success counter %s: %w", c.key, delErr)
	}
	return nil
}
