package repository

import (
	"context"
	"sync"
	"time"

	"chat_session/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RateLimitRepository bounds per-user message throughput inside a window.
type RateLimitRepository interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.redis.Incr(ctx, "ratelimit:"+key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return false, err
	}

	if count == 1 {
		r.redis.Expire(ctx, "ratelimit:"+key, window)
	}

	return count <= int64(limit), nil
}

type memoryRateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	count     int
	expiresAt time.Time
}

func NewMemoryRateLimitRepository() RateLimitRepository {
	return &memoryRateLimitRepository{windows: make(map[string]*rateWindow)}
}

func (r *memoryRateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	w, ok := r.windows[key]
	if !ok || !w.expiresAt.After(now) {
		r.windows[key] = &rateWindow{count: 1, expiresAt: now.Add(window)}
		return true, nil
	}

	w.count++
	return w.count <= limit, nil
}
