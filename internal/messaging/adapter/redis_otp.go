package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
	redisclient "github.com/aelexs/messaging-gateway/internal/redis"
)

// Hash fields of a stored code.
const (
	fieldCode      = "code"
	fieldAttempts  = "attempts"
	fieldCreatedAt = "created_at"
)

// incrementAttemptsScript atomically bumps the attempt counter. At the cap it
// deletes the record; otherwise it resets the TTL to the full window.
// Returns -1 when the key does not exist.
var incrementAttemptsScript = redisclient.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if n >= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
else
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// consumeScript deletes the record only while it holds ARGV[1]. Returns 1 when
// this call removed it.
var consumeScript = redisclient.NewScript(`
if redis.call('HGET', KEYS[1], 'code') ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

// RedisOTPStore keeps each code in a Redis hash with a PEXPIRE TTL, shared by
// every instance of the service.
type RedisOTPStore struct {
	cmd redisclient.Cmdable
}

var _ app.OTPStore = (*RedisOTPStore)(nil)

// NewRedisOTPStore creates a RedisOTPStore that uses cmd for Redis operations.
func NewRedisOTPStore(cmd redisclient.Cmdable) *RedisOTPStore {
	return &RedisOTPStore{cmd: cmd}
}

// Put replaces any record under key in one MULTI/EXEC.
func (s *RedisOTPStore) Put(ctx context.Context, key string, rec domain.OTPRecord, ttl time.Duration) error {
	ctx, span := startRedisSpan(ctx, "store.redis.put", "MULTI")
	defer span.End()

	_, err := s.cmd.TxPipelined(ctx, func(pipe redisclient.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldCode, rec.Code,
			fieldAttempts, rec.Attempts,
			fieldCreatedAt, rec.CreatedAt.UTC().UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("otp store: put %q: %w", key, err)
	}
	return nil
}

func (s *RedisOTPStore) Get(ctx context.Context, key string) (domain.OTPRecord, error) {
	ctx, span := startRedisSpan(ctx, "store.redis.get", "HGETALL")
	defer span.End()

	fields, err := s.cmd.HGetAll(ctx, key).Result()
	if err != nil {
		recordSpanError(span, err)
		return domain.OTPRecord{}, fmt.Errorf("otp store: get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.OTPRecord{}, fmt.Errorf("otp store: get %q: %w", key, domain.ErrNotFound)
	}

	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return domain.OTPRecord{}, fmt.Errorf("otp store: parse attempts of %q: %w", key, err)
	}
	createdMs, _ := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)

	return domain.OTPRecord{
		Code:      fields[fieldCode],
		Attempts:  attempts,
		CreatedAt: domain.FromMillis(createdMs),
	}, nil
}

func (s *RedisOTPStore) Has(ctx context.Context, key string) (bool, error) {
	ctx, span := startRedisSpan(ctx, "store.redis.has", "EXISTS")
	defer span.End()

	n, err := s.cmd.Exists(ctx, key).Result()
	if err != nil {
		recordSpanError(span, err)
		return false, fmt.Errorf("otp store: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Forget reports true only for the caller whose DEL removed the key.
func (s *RedisOTPStore) Forget(ctx context.Context, key string) (bool, error) {
	ctx, span := startRedisSpan(ctx, "store.redis.forget", "DEL")
	defer span.End()

	n, err := s.cmd.Del(ctx, key).Result()
	if err != nil {
		recordSpanError(span, err)
		return false, fmt.Errorf("otp store: forget %q: %w", key, err)
	}
	return n > 0, nil
}

// Consume deletes key in one script run when its code matches.
func (s *RedisOTPStore) Consume(ctx context.Context, key, code string) (bool, error) {
	ctx, span := startRedisSpan(ctx, "store.redis.consume", "EVALSHA")
	defer span.End()

	n, err := consumeScript.Run(ctx, s.cmd, []string{key}, code).Int64()
	if err != nil {
		recordSpanError(span, err)
		return false, fmt.Errorf("otp store: consume %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisOTPStore) IncrementAttempts(ctx context.Context, key string, maxAttempts int, ttl time.Duration) (int, error) {
	ctx, span := startRedisSpan(ctx, "store.redis.increment_attempts", "EVALSHA")
	defer span.End()

	n, err := incrementAttemptsScript.Run(ctx, s.cmd, []string{key}, maxAttempts, ttl.Milliseconds()).Int64()
	if err != nil {
		recordSpanError(span, err)
		return 0, fmt.Errorf("otp store: increment attempts %q: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("otp store: increment attempts %q: %w", key, domain.ErrNotFound)
	}
	return int(n), nil
}

func startRedisSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", op),
	)
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
