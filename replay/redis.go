package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/golden-vcr/openapi-go/hmac"
)

// RedisKeyPrefix is prepended to the key under which each nonce is recorded
const RedisKeyPrefix = "openapi:nonce:"

// RedisStore records nonces as keys that expire after the nonce TTL, using SET NX so
// that exactly one of any number of concurrent callers can claim a given nonce
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) CheckAndRecord(ctx context.Context, appId, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, RedisKeyPrefix+nonceKey(appId, nonce), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to record nonce: %w", err)
	}
	if !ok {
		return hmac.ErrNonceReused
	}
	return nil
}

var _ hmac.NonceStore = (*RedisStore)(nil)
