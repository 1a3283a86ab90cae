package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// CodeStoreInterface defines the interface for one-time codes.
type CodeStoreInterface interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, error)
}

// ResponseCacheInterface defines the interface for idempotent response replay.
type ResponseCacheInterface interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, resp *CachedResponse) error
	Forget(ctx context.Context, key string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface     = (*LockStore)(nil)
	_ CodeStoreInterface     = (*CodeStore)(nil)
	_ ResponseCacheInterface = (*ResponseCache)(nil)
)
