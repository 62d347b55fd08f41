package userauth

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without secret")
	}
	cfg.JWT.Secret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secret should validate: %v", err)
	}
}

func TestDefaultConfigPolicyValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Lockout.MaxAttempts != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults: %+v", cfg.Lockout)
	}
	if cfg.EmailVerification.TokenTTL != 24*time.Hour || cfg.PasswordReset.TokenTTL != time.Hour {
		t.Fatal("unexpected ephemeral token TTLs")
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"short secret":          func(c *Config) { c.JWT.Secret = []byte("short") },
		"zero access ttl":       func(c *Config) { c.JWT.AccessTTL = 0 },
		"refresh below access":  func(c *Config) { c.JWT.RefreshTTL = time.Minute },
		"leeway too large":      func(c *Config) { c.JWT.Leeway = time.Hour },
		"min length zero":       func(c *Config) { c.Password.MinLength = 0 },
		"lockout attempts zero": func(c *Config) { c.Lockout.MaxAttempts = 0 },
		"lockout duration zero": func(c *Config) { c.Lockout.Duration = 0 },
		"verification ttl":      func(c *Config) { c.EmailVerification.TokenTTL = 0 },
		"reset ttl":             func(c *Config) { c.PasswordReset.TokenTTL = -time.Second },
		"ephemeral backend":     func(c *Config) { c.Ephemeral.Backend = "memcached" },
		"throttle window":       func(c *Config) { c.Throttle.Window = 0 },
		"audit buffer":          func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := fastConfig()
			cfg.Throttle.MaxRequests = 1
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWithConfigCopiesSecret(t *testing.T) {
	cfg := fastConfig()
	secret := append([]byte(nil), testSecret...)
	cfg.JWT.Secret = secret

	b := New().WithConfig(cfg)
	secret[0] = 'X'
	if b.config.JWT.Secret[0] == 'X' {
		t.Fatal("builder must not alias caller secret")
	}
}

func TestBuildRequirements(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	if _, err := New().WithConfig(fastConfig()).WithRedis(client).Build(); err == nil {
		t.Fatal("expected error without credential store")
	}
	if _, err := New().WithConfig(fastConfig()).WithCredentialStore(newMemCredentialStore()).Build(); err == nil {
		t.Fatal("expected error without refresh store or redis")
	}

	cfg := fastConfig()
	cfg.Ephemeral.Backend = "redis"
	b := New().WithConfig(cfg).WithCredentialStore(newMemCredentialStore())
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error for redis ephemeral backend without client")
	}

	b = New().WithConfig(fastConfig()).WithCredentialStore(newMemCredentialStore()).WithRedis(client)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single-use")
	}
}
