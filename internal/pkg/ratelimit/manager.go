package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// Manager prefers Redis and falls back to memory while Redis is unavailable.
type Manager struct {
	nowFn         func() time.Time
	redisLimiter  *RedisLimiter
	memoryLimiter Limiter

	mu           sync.Mutex
	breakerUntil time.Time
}

// NewManager client 为 nil 时只使用内存限流
func NewManager(client *redis.Client, prefix string, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	m := &Manager{
		nowFn:         nowFn,
		memoryLimiter: NewMemoryLimiter(),
	}
	if client != nil {
		m.redisLimiter = NewRedisLimiter(client, prefix)
	}
	return m
}

func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()

	if m.redisLimiter != nil && !m.isBreakerActive(now) {
		result, err := m.redisLimiter.Allow(ctx, key, limit, now)
		if err == nil {
			return result, nil
		}
		m.tripBreaker(err, now)
	}
	return m.memoryLimiter.Allow(ctx, key, limit, now)
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}
