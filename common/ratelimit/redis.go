package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-redis/redis/v8"

	"github.com/one-chat/one-chat/common/random"
)

// Redis keeps one sorted set per key, scored by unix milliseconds, so every
// replica shares the same ledger.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedis(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	now := l.now()
	rkey := l.prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + random.GetRandomString(6)
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixMilli(), 10)

	var card *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, rkey, "-inf", cutoff)
		pipe.ZAdd(ctx, rkey, &redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, rkey)
		pipe.PExpire(ctx, rkey, l.window)
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "rate limit pipeline for %s", rkey)
	}

	if card.Val() > int64(l.limit) {
		if err := l.rdb.ZRem(ctx, rkey, member).Err(); err != nil {
			return false, errors.Wrapf(err, "drop rejected entry for %s", rkey)
		}
		return false, nil
	}
	return true, nil
}
