package startup

import (
	"context"
	"time"

	redisstorage "github.com/edume/internal/storage/redis"
)

// ConnectRedis подключается к Redis с повторами (New делает Ping).
func ConnectRedis(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Client, error) {
	return withRetry(ctx, "redis connect", maxWait, func(ctx context.Context) (*redisstorage.Client, error) {
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return redisstorage.New(connCtx, redisURL)
	})
}
