package credentials

import (
	"context"
	"fmt"

	"github.com/eaglebank/bank-service/shared/utils"
	goredis "github.com/redis/go-redis/v9"
)

const credentialKeyPrefix = "bank:credential:"

// RedisStore keeps one string key per user holding the bcrypt hash.
type RedisStore struct {
	client *goredis.Client
	cost   int
}

func NewRedisStore(client *goredis.Client, cost int) *RedisStore {
	return &RedisStore{client: client, cost: cost}
}

func (s *RedisStore) Exists(ctx context.Context, username string) (bool, error) {
	n, err := s.client.Exists(ctx, credentialKeyPrefix+username).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check credentials: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Verify(ctx context.Context, username, secret string) (bool, error) {
	hash, err := s.client.Get(ctx, credentialKeyPrefix+username).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get credentials: %w", err)
	}
	return utils.CheckPassword(secret, hash), nil
}

func (s *RedisStore) Register(ctx context.Context, username, secret string) error {
	hash, err := utils.HashPassword(secret, s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	ok, err := s.client.SetNX(ctx, credentialKeyPrefix+username, hash, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to register credentials: %w", err)
	}
	if !ok {
		return ErrAlreadyRegistered
	}
	return nil
}
