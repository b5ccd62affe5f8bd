/*
2021 © Postgres.ai
*/

package verification

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix defines the default key prefix of stored codes.
const DefaultRedisPrefix = "chegar:codes"

// RedisStore keeps codes in Redis using key expiration.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) failuresKey(key string) string {
	return s.key(key) + ":failures"
}

// Save stores the code with expiration and resets its failure counter.
func (s *RedisStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), code, ttl)
		pipe.Del(ctx, s.failuresKey(key))

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save code")
	}

	return nil
}

// Get returns the stored code.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	code, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, errors.Wrap(err, "failed to get code")
	}

	return code, true, nil
}

// Delete removes the code and its failure counter.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	var deleted *redis.IntCmd

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.key(key))
		pipe.Del(ctx, s.failuresKey(key))

		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to delete code")
	}

	return deleted.Val() > 0, nil
}

// RecordFailure increments the failure counter, which expires together with the code.
func (s *RedisStore) RecordFailure(ctx context.Context, key string) (int, error) {
	var (
		failures *redis.IntCmd
		ttl      *redis.DurationCmd
	)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		failures = pipe.Incr(ctx, s.failuresKey(key))
		ttl = pipe.PTTL(ctx, s.key(key))

		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to record code failure")
	}

	if ttl.Val() > 0 {
		if err := s.rdb.PExpire(ctx, s.failuresKey(key), ttl.Val()).Err(); err != nil {
			return 0, errors.Wrap(err, "failed to set failure counter expiration")
		}
	}

	return int(failures.Val()), nil
}
