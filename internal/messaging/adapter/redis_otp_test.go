package adapter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/adapter"
	redisclient "github.com/aelexs/messaging-gateway/internal/redis"
)

func newTestRedisStore(t *testing.T) (*adapter.RedisOTPStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.Config{
		Addr:         mr.Addr(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return adapter.NewRedisOTPStore(client.RDB), mr
}

func TestRedisOTPStore_PutGet(t *testing.T) {
	ctx := context.Background()
	rec := domain.OTPRecord{Code: "004211", Attempts: 0, CreatedAt: fixedTime()}

	t.Run("round trips the record and sets ttl", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "otp:login:22890123456", rec, 10*time.Minute))

		got, err := store.Get(ctx, "otp:login:22890123456")
		require.NoError(t, err)
		assert.Equal(t, "004211", got.Code, "leading zeros preserved")
		assert.Equal(t, 0, got.Attempts)
		assert.True(t, got.CreatedAt.Equal(fixedTime()))
		assert.Equal(t, 10*time.Minute, mr.TTL("otp:login:22890123456"))
	})

	t.Run("put replaces previous attempts", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", domain.OTPRecord{Code: "111111", Attempts: 2, CreatedAt: fixedTime()}, time.Minute))
		require.NoError(t, store.Put(ctx, "k", rec, time.Minute))

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Attempts)
		assert.Equal(t, "004211", got.Code)
	})

	t.Run("missing key is not found", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("expired key is gone", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", rec, time.Minute))
		mr.FastForward(time.Minute + time.Second)

		ok, err := store.Has(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("connection failure wraps error", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		mr.Close()

		err := store.Put(ctx, "k", rec, time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "otp store: put")
	})
}

func TestRedisOTPStore_IncrementAttempts(t *testing.T) {
	ctx := context.Background()
	rec := domain.OTPRecord{Code: "123456", CreatedAt: fixedTime()}

	t.Run("resets ttl below the cap", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", rec, time.Minute))
		mr.FastForward(40 * time.Second)

		n, err := store.IncrementAttempts(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, time.Minute, mr.TTL("k"))
	})

	t.Run("deletes at the cap", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", rec, time.Minute))

		for want := 1; want <= 3; want++ {
			n, err := store.IncrementAttempts(ctx, "k", 3, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		assert.False(t, mr.Exists("k"))
	})

	t.Run("missing key is not found", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		_, err := store.IncrementAttempts(ctx, "k", 3, time.Minute)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRedisOTPStore_Forget(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly one concurrent caller deletes", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", domain.OTPRecord{Code: "1", CreatedAt: fixedTime()}, time.Minute))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			deleted int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.Forget(ctx, "k")
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					deleted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, deleted)
	})
}

func TestRedisOTPStore_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("replaced code is left in place", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", domain.OTPRecord{Code: "111111", CreatedAt: fixedTime()}, time.Minute))
		require.NoError(t, store.Put(ctx, "k", domain.OTPRecord{Code: "222222", CreatedAt: fixedTime()}, time.Minute))

		deleted, err := store.Consume(ctx, "k", "111111")
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.True(t, mr.Exists("k"))
	})

	t.Run("missing key", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		deleted, err := store.Consume(ctx, "k", "111111")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("exactly one concurrent caller consumes", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		require.NoError(t, store.Put(ctx, "k", domain.OTPRecord{Code: "333333", CreatedAt: fixedTime()}, time.Minute))

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			consumed int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.Consume(ctx, "k", "333333")
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					consumed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, consumed)
		assert.False(t, mr.Exists("k"))
	})
}
