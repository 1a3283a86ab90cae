package app

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"campusride/internal/config"
)

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(config.RedisConfig{
		Addr:        "cache.internal:6380",
		DB:          2,
		PoolSize:    25,
		DialTimeout: time.Second,
		ReadTimeout: 500 * time.Millisecond,
	})
	if opts.TLSConfig != nil {
		t.Error("expected plain TCP when TLS is off")
	}
	if opts.PoolSize != 25 || opts.DB != 2 {
		t.Errorf("unexpected pool/db: %d/%d", opts.PoolSize, opts.DB)
	}
	if opts.WriteTimeout != 500*time.Millisecond {
		t.Errorf("expected write timeout to follow read timeout, got %v", opts.WriteTimeout)
	}

	opts = redisOptions(config.RedisConfig{Addr: "cache.internal:6380", TLS: true})
	if opts.TLSConfig == nil || opts.TLSConfig.ServerName != "cache.internal" {
		t.Fatalf("expected TLS for cache.internal, got %+v", opts.TLSConfig)
	}
}

func TestKeyNamespace(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cmd  redis.Cmder
		want string
	}{
		{"set", redis.NewStatusCmd(ctx, "set", "code:+15550000001", "1234"), "code"},
		{"setnx", redis.NewBoolCmd(ctx, "setnx", "lock:settlement-sweep", "tok"), "lock"},
		{"evalsha", redis.NewCmd(ctx, "evalsha", "abc123", 1, "lock:settlement-sweep", "tok"), "lock"},
		{"no prefix", redis.NewStringCmd(ctx, "get", "plain"), "plain"},
		{"no key", redis.NewStatusCmd(ctx, "ping"), "redis"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := keyNamespace(tc.cmd); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
