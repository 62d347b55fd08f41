package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures from the Redis store.
var ErrRedisUnavailable = errors.New("refresh redis unavailable")

// KEYS[1] = user index set
// ARGV[1] = record key prefix
const revokeAllScript = `
local members = redis.call("SMEMBERS", KEYS[1])
for _, h in ipairs(members) do
  local k = ARGV[1] .. h
  if redis.call("EXISTS", k) == 1 then
    redis.call("HSET", k, "revoked", "1")
  else
    redis.call("SREM", KEYS[1], h)
  end
end
return #members
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// KEYS[1] = user index set
// KEYS[2] = new record key
// ARGV[1] = record key prefix, ARGV[2] = new hash, ARGV[3] = user id,
// ARGV[4] = expires-at unix nanoseconds, ARGV[5] = ttl milliseconds
const rotateScript = `
local members = redis.call("SMEMBERS", KEYS[1])
for _, h in ipairs(members) do
  local k = ARGV[1] .. h
  if redis.call("EXISTS", k) == 1 then
    redis.call("HSET", k, "revoked", "1")
  else
    redis.call("SREM", KEYS[1], h)
  end
end
redis.call("HSET", KEYS[2], "user", ARGV[3], "exp_ns", ARGV[4], "revoked", "0")
redis.call("PEXPIRE", KEYS[2], ARGV[5])
redis.call("SADD", KEYS[1], ARGV[2])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// RedisStore keeps one hash per token (user, exp_ns, revoked) plus a set per user
// indexing that user's token hashes. Record keys carry a TTL equal to the token
// lifetime, so Redis reclaims expired records on its own; the sweeper removes
// revoked ones and stale index entries.
//
// The rotation scripts touch record keys derived from the index set, so the store
// requires a single-node or single-shard deployment.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store under prefix (default "urt").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "urt"
	}
	return &RedisStore{redis: client, prefix: prefix, now: time.Now}
}

// WithClock sets the clock used to derive key TTLs from absolute expiries.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisStore) recordPrefix() string {
	return s.prefix + ":tok:"
}

func (s *RedisStore) recordKey(hash string) string {
	return s.recordPrefix() + hash
}

func (s *RedisStore) userKey(userID int64) string {
	return s.prefix + ":user:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) ttl(expiresAt time.Time) (time.Duration, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return 0, errors.New("refresh token already expired")
	}
	return ttl, nil
}

func (s *RedisStore) Save(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	ttl, err := s.ttl(expiresAt)
	if err != nil {
		return err
	}

	hash := HashToken(token)
	key := s.recordKey(hash)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "user", userID, "exp_ns", expiresAt.UnixNano(), "revoked", "0")
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, s.userKey(userID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	hash := HashToken(token)
	fields, err := s.redis.HGetAll(ctx, s.recordKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(hash, fields)
}

func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.recordPrefix()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Rotate(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	ttl, err := s.ttl(expiresAt)
	if err != nil {
		return err
	}

	hash := HashToken(token)
	err = rotateLua.Run(ctx, s.redis,
		[]string{s.userKey(userID), s.recordKey(hash)},
		s.recordPrefix(), hash, userID, expiresAt.UnixNano(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SweepExpiredAndRevoked scans record keys and deletes revoked or expired ones,
// then drops index entries pointing at records that no longer exist.
func (s *RedisStore) SweepExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error) {
	var removed int64

	iter := s.redis.Scan(ctx, 0, s.recordPrefix()+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(key[len(s.recordPrefix()):], fields)
		if err != nil || rec.Revoked || !now.Before(rec.ExpiresAt) {
			n, err := s.redis.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			removed += n
			if rec != nil {
				s.redis.SRem(ctx, s.userKey(rec.UserID), rec.TokenHash)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	users := s.redis.Scan(ctx, 0, s.prefix+":user:*", 256).Iterator()
	for users.Next(ctx) {
		setKey := users.Val()
		members, err := s.redis.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, hash := range members {
			exists, err := s.redis.Exists(ctx, s.recordKey(hash)).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			if exists == 0 {
				s.redis.SRem(ctx, setKey, hash)
			}
		}
	}
	if err := users.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return removed, nil
}

func decodeRecord(hash string, fields map[string]string) (*Record, error) {
	userID, err := strconv.ParseInt(fields["user"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh record: user: %w", err)
	}
	expiresAt, err := decodeExpiry(fields)
	if err != nil {
		return nil, err
	}
	return &Record{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Revoked:   fields["revoked"] == "1",
	}, nil
}

// decodeExpiry reads exp_ns, falling back to the whole-second exp field written
// by earlier releases.
func decodeExpiry(fields map[string]string) (time.Time, error) {
	if v, ok := fields["exp_ns"]; ok {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("corrupt refresh record: exp_ns: %w", err)
		}
		return time.Unix(0, ns), nil
	}
	sec, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt refresh record: exp: %w", err)
	}
	return time.Unix(sec, 0), nil
}
