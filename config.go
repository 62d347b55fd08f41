package userauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/userauth/lockout"
	"github.com/MrEthical07/userauth/password"
)

// Config is the full engine configuration. Start from DefaultConfig and set at
// least JWT.Secret.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Ephemeral         EphemeralConfig
	Refresh           RefreshConfig
	Throttle          ThrottleConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing. Secret is the shared HS256 key and
// must be at least 32 bytes.
type JWTConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the length policy.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	MinLength        int
	// UpgradeOnLogin re-hashes legacy or weaker hashes after a successful login.
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

func (c LockoutConfig) Policy() lockout.Policy {
	return lockout.Policy{MaxAttempts: c.MaxAttempts, Duration: c.Duration}
}

/*
====================================
EPHEMERAL TOKEN CONFIG
====================================
*/

type EmailVerificationConfig struct {
	TokenTTL time.Duration
	// SendOnRegister issues and mails a verification token from Register.
	SendOnRegister bool
}

type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// EphemeralConfig selects where verification and reset tokens live.
// Backend is "memory" (single instance) or "redis".
type EphemeralConfig struct {
	Backend       string
	RedisPrefix   string
	SweepInterval time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures the Redis refresh store the builder creates when no
// store is supplied explicitly.
type RefreshConfig struct {
	RedisPrefix string
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig bounds verification and reset requests per email address.
// Windows live in Redis when the builder has a client and in process otherwise.
// MaxRequests == 0 disables it.
type ThrottleConfig struct {
	MaxRequests int
	Window      time.Duration
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.Secret is left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			MinLength:        8,
			UpgradeOnLogin:   true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: lockout.DefaultMaxAttempts,
			Duration:    lockout.DefaultDuration,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:       24 * time.Hour,
			SendOnRegister: true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		Ephemeral: EphemeralConfig{
			Backend:       "memory",
			RedisPrefix:   "uet",
			SweepInterval: time.Minute,
		},
		Refresh: RefreshConfig{
			RedisPrefix: "urt",
		},
		Throttle: ThrottleConfig{
			MaxRequests: 5,
			Window:      time.Hour,
			RedisPrefix: "urq",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Password.MinLength > c.Password.MaxPasswordBytes {
		return errors.New("Password MinLength must be <= MaxPasswordBytes")
	}

	// Lockout
	if err := c.Lockout.Policy().Validate(); err != nil {
		return err
	}

	// Ephemeral tokens
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	switch strings.ToLower(c.Ephemeral.Backend) {
	case "memory", "redis":
	default:
		return errors.New("Ephemeral Backend must be \"memory\" or \"redis\"")
	}

	// Throttle
	if c.Throttle.MaxRequests < 0 {
		return errors.New("Throttle MaxRequests must be >= 0")
	}
	if c.Throttle.MaxRequests > 0 && c.Throttle.Window <= 0 {
		return errors.New("Throttle Window must be > 0 when MaxRequests is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
