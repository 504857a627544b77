package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options describes the Redis deployment that holds the slot locks.
type Options struct {
	Addr     string
	Username string
	Password string
	// PoolSize defaults to 10. Each booking write holds one connection for
	// the acquire and one for the release.
	PoolSize int
}

// NewRedisClient dials Redis for slot locking and fails fast when the server
// does not answer a PING within the context's deadline (5s if none is set).
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping lock store at %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
