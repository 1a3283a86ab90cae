package redis

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyTTL is how long a replayable response is kept.
const IdempotencyTTL = 24 * time.Hour

const (
	idempotencyPrefix = "idempotency:"
	pendingMarker     = "pending"
)

// CachedResponse is a stored HTTP response for an idempotent request.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// ResponseCache stores responses by idempotency key.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client, ttl: IdempotencyTTL}
}

// Get retrieves a cached response. It returns nil, false on a cache miss and
// nil, true while another request with the same key is still running.
func (s *ResponseCache) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // Cache miss
		}
		return nil, false, err
	}
	if string(data) == pendingMarker {
		return nil, true, nil
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, err
	}
	return &cached, true, nil
}

// Reserve marks key as in flight. It returns false when the key is already
// reserved or holds a response.
func (s *ResponseCache) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, pendingMarker, ttl).Result()
}

// Set stores the final response under key.
func (s *ResponseCache) Set(ctx context.Context, key string, resp *CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyPrefix+key, data, s.ttl).Err()
}

// Forget drops key so the request can be retried.
func (s *ResponseCache) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}
