package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Policy.PlatformFeePercent != 7 {
		t.Errorf("expected fee 7%%, got %v", cfg.Policy.PlatformFeePercent)
	}
	if cfg.Policy.PenaltyPercent != 20 {
		t.Errorf("expected penalty 20%%, got %v", cfg.Policy.PenaltyPercent)
	}
	if cfg.Policy.LateCancellationWindow != 48*time.Hour {
		t.Errorf("expected 48h window, got %v", cfg.Policy.LateCancellationWindow)
	}
	if cfg.Policy.SettlementDeadline != 24*time.Hour {
		t.Errorf("expected 24h deadline, got %v", cfg.Policy.SettlementDeadline)
	}
	if cfg.Policy.PenaltyFreeStrikes != 1 {
		t.Errorf("expected 1 free strike, got %d", cfg.Policy.PenaltyFreeStrikes)
	}
	if cfg.Policy.StrikeDecay != 0 {
		t.Errorf("expected strike decay disabled, got %v", cfg.Policy.StrikeDecay)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("POLICY_PLATFORM_FEE_PERCENT", "10")
	t.Setenv("POLICY_SETTLEMENT_DEADLINE", "36h")
	t.Setenv("POLICY_HUB_CITY", "Boston")
	t.Setenv("AUTH_TRUSTED_HEADERS", "true")
	t.Setenv("AUTH_ADMIN_USER_IDS", " admin-1, ,admin-2 ")

	cfg := Load()

	if cfg.Policy.PlatformFeePercent != 10 {
		t.Errorf("expected fee 10%%, got %v", cfg.Policy.PlatformFeePercent)
	}
	if cfg.Policy.SettlementDeadline != 36*time.Hour {
		t.Errorf("expected 36h, got %v", cfg.Policy.SettlementDeadline)
	}
	if cfg.Policy.HubCity != "Boston" {
		t.Errorf("expected Boston, got %s", cfg.Policy.HubCity)
	}
	if !cfg.Auth.TrustedHeaders {
		t.Error("expected trusted headers enabled")
	}
	if len(cfg.Auth.AdminUserIDs) != 2 || cfg.Auth.AdminUserIDs[1] != "admin-2" {
		t.Errorf("unexpected admin ids: %v", cfg.Auth.AdminUserIDs)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("POLICY_PENALTY_PERCENT", "twenty")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	if cfg.Policy.PenaltyPercent != 20 {
		t.Errorf("expected fallback 20, got %v", cfg.Policy.PenaltyPercent)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("expected fallback 0, got %d", cfg.Redis.DB)
	}
}

func TestLoad_RedisSettings(t *testing.T) {
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_POOL_SIZE", "25")
	t.Setenv("REDIS_READ_TIMEOUT", "500ms")

	cfg := Load()

	if !cfg.Redis.TLS {
		t.Error("expected TLS enabled")
	}
	if cfg.Redis.PoolSize != 25 {
		t.Errorf("expected pool size 25, got %d", cfg.Redis.PoolSize)
	}
	if cfg.Redis.ReadTimeout != 500*time.Millisecond {
		t.Errorf("expected 500ms read timeout, got %v", cfg.Redis.ReadTimeout)
	}
	if cfg.Redis.DialTimeout != 5*time.Second {
		t.Errorf("expected default 5s dial timeout, got %v", cfg.Redis.DialTimeout)
	}
}
