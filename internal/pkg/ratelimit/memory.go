package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	memoryIdleTTL       = 3 * Window
	memorySweepInterval = Window
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key, refilled at limit per minute.
type MemoryLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}

	lim := l.getLimiter(key, limit, now)
	if !lim.AllowN(now, 1) {
		wait := time.Duration(float64(time.Second) / float64(lim.Limit()))
		return Result{Allowed: false, Remaining: 0, Reset: now.Add(wait).UTC()}, nil
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Reset: now.Add(Window).UTC()}, nil
}

func (l *MemoryLimiter) getLimiter(key string, limit int, now time.Time) *rate.Limiter {
	// 套餐变化后限额不同，按 key+limit 区分
	k := key + "#" + strconv.Itoa(limit)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	if v, ok := l.visitors[k]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rate.Limit(float64(limit)/Window.Seconds()), limit)
	l.visitors[k] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// sweep 每个周期最多扫描一次空闲 key
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < memorySweepInterval {
		return
	}
	l.lastSweep = now
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > memoryIdleTTL {
			delete(l.visitors, k)
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
