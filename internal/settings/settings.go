package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/userauth"
)

const (
	EnvPrefix     = "USERAUTH_"
	ConfigFileEnv = EnvPrefix + "CONFIG_FILE"
)

type Settings struct {
	Environment string   `yaml:"environment" env:"ENVIRONMENT"`
	HTTP        HTTP     `yaml:"http" envPrefix:"HTTP_"`
	Log         Log      `yaml:"log" envPrefix:"LOG_"`
	Database    Database `yaml:"database" envPrefix:"DB_"`
	Redis       Redis    `yaml:"redis" envPrefix:"REDIS_"`
	SMTP        SMTP     `yaml:"smtp" envPrefix:"SMTP_"`
	Sentry      Sentry   `yaml:"sentry" envPrefix:"SENTRY_"`
	Auth        Auth     `yaml:"auth" envPrefix:"AUTH_"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MetricsEnabled  bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Database selects the credential and refresh token backend. An empty DSN keeps
// credentials in an in-memory SQLite database and refresh tokens in Redis.
type Database struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// Redis configures the shared client. Embedded starts an in-process miniredis,
// for development only.
type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Embedded bool   `yaml:"embedded" env:"EMBEDDED"`
}

// SMTP configures outgoing mail. An empty Host logs mail instead of sending it.
type SMTP struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	From     string `yaml:"from" env:"FROM"`
	AppName  string `yaml:"app_name" env:"APP_NAME"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
}

type Sentry struct {
	DSN              string  `yaml:"dsn" env:"DSN"`
	TracesSampleRate float64 `yaml:"traces_sample_rate" env:"TRACES_SAMPLE_RATE"`
}

type Auth struct {
	JWTSecret                  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer                     string        `yaml:"issuer" env:"ISSUER"`
	AccessTTL                  time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL                 time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`
	Leeway                     time.Duration `yaml:"leeway" env:"LEEWAY"`
	MinPasswordLength          int           `yaml:"min_password_length" env:"MIN_PASSWORD_LENGTH"`
	LockoutMaxAttempts         int           `yaml:"lockout_max_attempts" env:"LOCKOUT_MAX_ATTEMPTS"`
	LockoutDuration            time.Duration `yaml:"lockout_duration" env:"LOCKOUT_DURATION"`
	VerificationTTL            time.Duration `yaml:"verification_ttl" env:"VERIFICATION_TTL"`
	ResetTTL                   time.Duration `yaml:"reset_ttl" env:"RESET_TTL"`
	SendVerificationOnRegister bool          `yaml:"send_verification_on_register" env:"SEND_VERIFICATION_ON_REGISTER"`
	EphemeralBackend           string        `yaml:"ephemeral_backend" env:"EPHEMERAL_BACKEND"`
	ThrottleMaxRequests        int           `yaml:"throttle_max_requests" env:"THROTTLE_MAX_REQUESTS"`
	ThrottleWindow             time.Duration `yaml:"throttle_window" env:"THROTTLE_WINDOW"`
	RefreshSweepInterval       time.Duration `yaml:"refresh_sweep_interval" env:"REFRESH_SWEEP_INTERVAL"`
	AuditEnabled               bool          `yaml:"audit_enabled" env:"AUDIT_ENABLED"`
	MetricsEnabled             bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	LatencyHistograms          bool          `yaml:"latency_histograms" env:"LATENCY_HISTOGRAMS"`
}

// Default mirrors userauth.DefaultConfig plus server defaults.
func Default() Settings {
	auth := userauth.DefaultConfig()
	return Settings{
		Environment: "development",
		HTTP: HTTP{
			Addr:            ":8082",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsEnabled:  true,
		},
		Log:   Log{Level: "info", Format: "json"},
		Redis: Redis{Addr: "localhost:6379"},
		SMTP:  SMTP{Port: 587, AppName: "user-service", BaseURL: "http://localhost:8082"},
		Auth: Auth{
			Issuer:                     "userauth",
			AccessTTL:                  auth.JWT.AccessTTL,
			RefreshTTL:                 auth.JWT.RefreshTTL,
			MinPasswordLength:          auth.Password.MinLength,
			LockoutMaxAttempts:         auth.Lockout.MaxAttempts,
			LockoutDuration:            auth.Lockout.Duration,
			VerificationTTL:            auth.EmailVerification.TokenTTL,
			ResetTTL:                   auth.PasswordReset.TokenTTL,
			SendVerificationOnRegister: auth.EmailVerification.SendOnRegister,
			EphemeralBackend:           "redis",
			ThrottleMaxRequests:        auth.Throttle.MaxRequests,
			ThrottleWindow:             auth.Throttle.Window,
			RefreshSweepInterval:       10 * time.Minute,
			AuditEnabled:               true,
			MetricsEnabled:             auth.Metrics.Enabled,
			LatencyHistograms:          true,
		},
	}
}

// Options controls which sources Load reads.
type Options struct {
	// File is a YAML file; empty falls back to $USERAUTH_CONFIG_FILE.
	File string
	// DotEnv lists .env files to load; missing files are skipped.
	DotEnv []string
}

// Load layers the configured sources over Default and validates the result.
func Load(opts Options) (*Settings, error) {
	s := Default()

	if len(opts.DotEnv) > 0 {
		if err := loadDotEnv(opts.DotEnv); err != nil {
			return nil, err
		}
	}

	file := opts.File
	if file == "" {
		file = os.Getenv(ConfigFileEnv)
	}
	if file != "" {
		if err := loadYAML(file, &s); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func loadDotEnv(files []string) error {
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

func loadYAML(path string, s *Settings) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks what the daemon needs before it can start.
func (s *Settings) Validate() error {
	if len(s.Auth.JWTSecret) < 32 {
		return errors.New("settings: auth.jwt_secret must be at least 32 bytes")
	}
	if s.Database.DSN != "" && strings.TrimSpace(s.Database.Driver) == "" {
		return errors.New("settings: database.driver required with database.dsn")
	}
	if !s.Redis.Embedded && s.Redis.Addr == "" {
		return errors.New("settings: redis.addr required unless redis.embedded")
	}
	switch s.Auth.EphemeralBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("settings: unknown ephemeral backend %q", s.Auth.EphemeralBackend)
	}
	return nil
}

// AuthConfig converts the settings to an engine configuration.
func (s *Settings) AuthConfig() userauth.Config {
	cfg := userauth.DefaultConfig()
	cfg.JWT.Secret = []byte(s.Auth.JWTSecret)
	cfg.JWT.Issuer = s.Auth.Issuer
	cfg.JWT.AccessTTL = s.Auth.AccessTTL
	cfg.JWT.RefreshTTL = s.Auth.RefreshTTL
	cfg.JWT.Leeway = s.Auth.Leeway
	cfg.Password.MinLength = s.Auth.MinPasswordLength
	cfg.Lockout.MaxAttempts = s.Auth.LockoutMaxAttempts
	cfg.Lockout.Duration = s.Auth.LockoutDuration
	cfg.EmailVerification.TokenTTL = s.Auth.VerificationTTL
	cfg.EmailVerification.SendOnRegister = s.Auth.SendVerificationOnRegister
	cfg.PasswordReset.TokenTTL = s.Auth.ResetTTL
	cfg.Ephemeral.Backend = s.Auth.EphemeralBackend
	cfg.Throttle.MaxRequests = s.Auth.ThrottleMaxRequests
	cfg.Throttle.Window = s.Auth.ThrottleWindow
	cfg.Audit.Enabled = s.Auth.AuditEnabled
	cfg.Metrics.Enabled = s.Auth.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.Auth.LatencyHistograms
	return cfg
}
