package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/redis/go-redis/v9"
)

// Redis is a b2c.TokenCache stored in Redis. Entries are plain string keys
// whose TTL is derived from the token's expiry, so Redis evicts them.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

var _ b2c.TokenCache = (*Redis)(nil)

// NewRedis creates a Redis cache using client.
// Supported options: WithKeyPrefix, WithNow
func NewRedis(client redis.UniversalClient, opt ...Option) (*Redis, error) {
	const op = "tokencache.NewRedis"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, b2c.ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &Redis{
		client:    client,
		keyPrefix: opts.withKeyPrefix,
		now:       opts.withNowFunc,
	}, nil
}

func (r *Redis) key(identityId string) string { return r.keyPrefix + identityId }

// Get returns identityId's token unless it is missing or expired.
func (r *Redis) Get(ctx context.Context, identityId string) (b2c.AccessToken, bool, error) {
	const op = "Redis.Get"
	v, err := r.client.Get(ctx, r.key(identityId)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return b2c.AccessToken(v), true, nil
}

// Set stores t for identityId, replacing any existing entry. An expiry that
// has already passed removes the entry instead.
func (r *Redis) Set(ctx context.Context, identityId string, t b2c.AccessToken, expiry time.Time) error {
	const op = "Redis.Set"
	if identityId == "" {
		return fmt.Errorf("%s: identity id is empty: %w", op, b2c.ErrInvalidParameter)
	}
	var ttl time.Duration
	if !expiry.IsZero() {
		ttl = expiry.Sub(r.now())
		if ttl <= 0 {
			if err := r.client.Del(ctx, r.key(identityId)).Err(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			return nil
		}
	}
	if err := r.client.Set(ctx, r.key(identityId), string(t), ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
