package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a test Redis server using miniredis
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDeduper_AcquireOnce(t *testing.T) {
	mr, rdb := setupMiniRedis(t)
	d := NewDeduper(rdb, time.Minute, nil)
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "analyze", 42))
	assert.False(t, d.AcquireOnce(ctx, "analyze", 42))
	assert.True(t, d.AcquireOnce(ctx, "analyze", 43))
	assert.True(t, d.AcquireOnce(ctx, "other", 42))

	t.Run("Release allows a second acquisition", func(t *testing.T) {
		require.NoError(t, d.Release(ctx, "analyze", 42))
		assert.True(t, d.AcquireOnce(ctx, "analyze", 42))
	})

	t.Run("TTL expiry allows a second acquisition", func(t *testing.T) {
		assert.True(t, d.AcquireOnce(ctx, "ttl", 1))
		mr.FastForward(2 * time.Minute)
		assert.True(t, d.AcquireOnce(ctx, "ttl", 1))
	})

	t.Run("Redis down allows processing", func(t *testing.T) {
		mr.Close()
		assert.True(t, d.AcquireOnce(ctx, "analyze", 99))
	})
}

func TestRetryCounter(t *testing.T) {
	mr, rdb := setupMiniRedis(t)
	rc := NewRetryCounter(rdb, time.Hour)
	ctx := context.Background()
	key := FormatRetryKey("analyze", 7)

	assert.Equal(t, "sprintmail:retry:analyze:7", key)
	assert.Equal(t, "sprintmail:dedup:analyze:7", FormatDedupKey("analyze", 7))

	n, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := int64(1); i <= 3; i++ {
		n, err = rc.IncrementAndGet(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.True(t, mr.TTL(key) > 0)

	require.NoError(t, rc.Reset(ctx, key))
	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json syntax", fmt.Errorf("decode: %w", &json.SyntaxError{}), false, "json_decode_error"},
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), false, "record_not_found"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"breaker open", fmt.Errorf("call: %w", gobreaker.ErrOpenState), true, "circuit_open"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"provider", errors.New("provider failure: deepseek returned 503"), true, "provider_failure"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 5, true))
	assert.True(t, ShouldRetry(5, 5, true))
	assert.False(t, ShouldRetry(6, 5, true))
	assert.False(t, ShouldRetry(1, 5, false))
}
