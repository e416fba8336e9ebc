package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"charterhub/berth/pkg/storage"
)

// StorageCheck borrows a session through exec and pings the backend,
// retrying within the check timeout. With a pooled executor this also fails
// when no session can be borrowed in time.
func StorageCheck(exec storage.Executor) CheckFunc {
	return func(ctx context.Context) error {
		return exec.ExecuteWithRetry(ctx, func(ctx context.Context, s storage.Session) error {
			return s.Ping(ctx)
		}, 0)
	}
}

// RedisCheck pings the shared rate limit store.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}
