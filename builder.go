package userauth

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/userauth/internal/audit"
	"github.com/MrEthical07/userauth/internal/rate"
	"github.com/MrEthical07/userauth/internal/stores"
	"github.com/MrEthical07/userauth/jwt"
	"github.com/MrEthical07/userauth/password"
	"github.com/MrEthical07/userauth/refresh"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials  CredentialStore
	refreshStore refresh.Store
	notifier     Notifier
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used for the default refresh store, the Redis
// ephemeral backend and request throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithRefreshStore overrides the Redis refresh store, e.g. with the SQL one.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every engine decision (token expiry, lockout,
// ephemeral token expiry).
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.refreshStore == nil && b.redis == nil {
		return nil, errors.New("refresh store or redis client required")
	}
	backend := strings.ToLower(cfg.Ephemeral.Backend)
	if backend == "redis" && b.redis == nil {
		return nil, errors.New("Ephemeral Backend redis requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		credentials:  b.credentials,
		passwordHash: ph,
		jwtManager:   jm,
		notifier:     notifier,
		logger:       logger,
		now:          now,
		metrics:      NewMetrics(cfg.Metrics),
		lockout:      cfg.Lockout.Policy(),
	}

	// -------- REFRESH STORE --------
	if b.refreshStore != nil {
		engine.refreshStore = b.refreshStore
	} else {
		engine.refreshStore = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix).WithClock(now)
	}

	// -------- EPHEMERAL TOKENS --------
	if backend == "redis" {
		engine.tokens = stores.NewRedisStore(b.redis, cfg.Ephemeral.RedisPrefix)
	} else {
		mem := stores.NewMemoryStore(cfg.Ephemeral.SweepInterval, now)
		engine.tokens = mem
		engine.ownedTokens = mem
	}

	// -------- THROTTLE --------
	if cfg.Throttle.MaxRequests > 0 {
		rc := rate.Config{
			MaxRequests: cfg.Throttle.MaxRequests,
			Window:      cfg.Throttle.Window,
			Prefix:      cfg.Throttle.RedisPrefix,
		}
		if b.redis != nil {
			engine.throttle = rate.New(b.redis, rc)
		} else {
			engine.throttle = rate.NewMemory(rc, now)
		}
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)

	// Compared against when the email is unknown so that path costs one KDF run.
	engine.dummyHash, err = ph.Hash("userauth-timing-equaliser")
	if err != nil {
		engine.Close()
		return nil, err
	}

	b.built = true

	return engine, nil
}
