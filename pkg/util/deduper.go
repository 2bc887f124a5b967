package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper 创建基于 Redis SetNX 的去重器，logger 可为 nil
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given handler + id.
// Returns true the first time, false for a duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id int64) bool {
	key := FormatDedupKey(handler, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止处理
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.Int64("id", id),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release 释放去重锁（处理失败需要重新投递时调用）
func (d *Deduper) Release(ctx context.Context, handler string, id int64) error {
	return d.rdb.Del(ctx, FormatDedupKey(handler, id)).Err()
}

// FormatDedupKey sprintmail:dedup:<handler>:<id>
func FormatDedupKey(handler string, id int64) string {
	return fmt.Sprintf("%s:dedup:%s:%d", keyNamespace, handler, id)
}
