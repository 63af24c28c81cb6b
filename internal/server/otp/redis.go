package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/otpauth/internal/common"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "otp"

var _ Store = (*RedisStore)(nil)

// takeScript returns 0 when the key is missing, 1 on mismatch, 2 after
// deleting a matching code.
var takeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
	return 0
end
if v ~= ARGV[1] then
	return 1
end
redis.call("DEL", KEYS[1])
return 2
`)

// RedisStore keeps codes in Redis so several server instances share them.
// Expiry is delegated to the key TTL.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(owner string) string {
	return s.prefix + ":" + owner
}

func (s *RedisStore) Put(ctx context.Context, owner, code string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(owner), code, ttl).Err(); err != nil {
		return fmt.Errorf("%w: otp put: %v", common.ErrDependency, err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, owner, candidate string) (Result, error) {
	n, err := takeScript.Run(ctx, s.redis, []string{s.key(owner)}, candidate).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Absent, nil
		}
		return Absent, fmt.Errorf("%w: otp take: %v", common.ErrDependency, err)
	}

	switch n {
	case 0:
		return Absent, nil
	case 1:
		return Mismatch, nil
	case 2:
		return Match, nil
	default:
		return Absent, fmt.Errorf("%w: otp take: unexpected script result %d", common.ErrDependency, n)
	}
}
