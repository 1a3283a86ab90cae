package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const codePrefix = "code:"

// CodeStore keeps one-time verification codes with an expiry.
type CodeStore struct {
	client *redis.Client
}

// NewCodeStore creates a new CodeStore.
func NewCodeStore(client *redis.Client) *CodeStore {
	return &CodeStore{client: client}
}

// Put stores code under key, replacing any earlier code.
func (s *CodeStore) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	return s.client.Set(ctx, codePrefix+key, code, ttl).Err()
}

// Take returns the code under key and deletes it. An expired or missing
// code yields "".
func (s *CodeStore) Take(ctx context.Context, key string) (string, error) {
	code, err := s.client.GetDel(ctx, codePrefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}
