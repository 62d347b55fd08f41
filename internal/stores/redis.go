package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenRedisUnavailable = errors.New("token redis unavailable")

// KEYS[1] = record key. Returns the encoded record, or nil when absent.
var consumeTokenLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return false
end
redis.call('DEL', KEYS[1])
return data
`)

// RedisStore keeps tokens in Redis with a key TTL equal to the token lifetime.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store under prefix (default "uet").
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "uet"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(kind Kind, token string) string {
	return s.prefix + ":" + kind.String() + ":" + tokenKey(token)
}

func (s *RedisStore) Issue(ctx context.Context, kind Kind, email string, ttl time.Duration, now time.Time) (string, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	token, record, err := newTokenRecord(email, ttl, now)
	if err != nil {
		return "", err
	}
	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, s.key(kind, token), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return token, nil
}

func (s *RedisStore) Peek(ctx context.Context, kind Kind, token string, now time.Time) (string, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	data, err := s.redis.Get(ctx, s.key(kind, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFoundOrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return s.checkRecord(data, now)
}

func (s *RedisStore) Consume(ctx context.Context, kind Kind, token string, now time.Time) (string, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	data, err := consumeTokenLua.Run(ctx, s.redis, []string{s.key(kind, token)}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFoundOrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return s.checkRecord([]byte(data), now)
}

func (s *RedisStore) Invalidate(ctx context.Context, kind Kind, token string) error {
	if !kind.valid() {
		return ErrUnknownKind
	}
	if err := s.redis.Del(ctx, s.key(kind, token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) checkRecord(data []byte, now time.Time) (string, error) {
	record, err := decodeTokenRecord(data)
	if err != nil {
		return "", ErrTokenNotFoundOrExpired
	}
	if record.expired(now) {
		return "", ErrTokenNotFoundOrExpired
	}
	return record.Email, nil
}
