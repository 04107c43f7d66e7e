package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares cached entries between api instances.
type RedisStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration, prefix string, log *slog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
		log:    log.With(slog.String("component", "cache.redis")),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte) {
	if err := s.rdb.Set(ctx, s.prefix+key, val, s.ttl).Err(); err != nil {
		s.log.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		s.log.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
	}
}
