package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abujawed11/engage-swap-sub000/pkg/rediskey"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewFixedWindow),
)

// Limiter answers whether one more request is allowed for an identifier.
type Limiter interface {
	Allow(ctx context.Context, scope, identifier string, limit int, window time.Duration) bool
}

// FixedWindow counts requests in fixed windows on redis. It FAILS OPEN: if the
// counting store is unreachable the request is allowed. Only non-monetary
// paths may use this limiter; the claim path must fail closed instead.
type FixedWindow struct {
	rdb *redis.Client
}

func NewFixedWindow(rdb *redis.Client) Limiter {
	return &FixedWindow{rdb: rdb}
}

func (l *FixedWindow) Allow(ctx context.Context, scope, identifier string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}

	bucket := time.Now().Unix() / int64(window.Seconds())
	key := rediskey.BuildRateLimitKey(scope, identifier, bucket)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("rate limiter store unreachable, failing open",
			zap.String("scope", scope), zap.Error(err))
		return true
	}

	return incr.Val() <= int64(limit)
}
