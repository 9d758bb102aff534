package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExportLimiter is a fixed-window rate limiter backed by redis, used for the
// CSV export endpoints. The window state lives in redis so the limit holds
// across multiple API replicas.
type ExportLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewExportLimiter(client *redis.Client, limit int64, window time.Duration) *ExportLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ExportLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow counts one attempt for the key and reports whether it is within the
// window's budget. Fails open: if redis is unreachable the export proceeds.
func (l *ExportLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}

	redisKey := fmt.Sprintf("export-limit:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		log.WithError(err).WithField("prefix", "api").Warn("export limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}

	return count <= l.limit
}
