// Package ratelimit provides a Redis-backed fixed-window limiter for the
// abuse-prone auth endpoints (login, password-reset requests).
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func New(rdb *redis.Client, prefix string, limit int64, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow counts one attempt for key and reports whether it is still within the
// window budget. Redis being down must never lock users out of the login
// flow, so transport errors fail open.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.rdb == nil {
		return true
	}
	// Bucket on milliseconds so sub-second windows stay valid divisors.
	win := l.window.Milliseconds()
	if win <= 0 {
		win = time.Second.Milliseconds()
	}
	bucket := fmt.Sprintf("%s:{%s}:%d", l.prefix, key, time.Now().UnixMilli()/win)

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("rate limiter unavailable, failing open", "prefix", l.prefix, "error", err)
		return true
	}
	return count.Val() <= l.limit
}
