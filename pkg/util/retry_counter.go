package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "sprintmail"

// RetryCounter 记录某个消费者对同一条记录的尝试次数，窗口随每次尝试顺延
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet 原子地自增并刷新过期时间，返回本次是第几次尝试
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Get 未记录过时返回 0
func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey sprintmail:retry:<handler>:<id>
func FormatRetryKey(handler string, id int64) string {
	return fmt.Sprintf("%s:retry:%s:%d", keyNamespace, handler, id)
}
