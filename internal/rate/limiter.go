package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/userauth/internal"
)

// Config holds throttle tuning parameters.
type Config struct {
	// MaxRequests per Window and action; zero disables the throttle.
	MaxRequests int
	Window      time.Duration
	Prefix      string
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "urq"
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	return c
}

// counter increments key inside a fixed window and returns the hits so far.
type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces per-email request budgets.
type Limiter struct {
	counter counter
	config  Config
}

// New creates a [Limiter] whose windows live in Redis, shared by every instance
// pointing at the same server.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		counter: &redisCounter{client: redisClient},
		config:  cfg.withDefaults(),
	}
}

// NewMemory creates a [Limiter] that counts in process. now may be nil.
func NewMemory(cfg Config, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		counter: &memoryCounter{now: now, windows: make(map[string]*memoryWindow)},
		config:  cfg.withDefaults(),
	}
}

// Allow counts one request for (action, email) and returns ErrRateLimited once
// the window budget is exhausted.
func (l *Limiter) Allow(ctx context.Context, action, email string) error {
	if l == nil || l.counter == nil || l.config.MaxRequests <= 0 {
		return nil
	}

	count, err := l.counter.incr(ctx, l.key(action, email), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRequests) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) key(action, email string) string {
	return l.config.Prefix + ":" + action + ":" + internal.HashToken(strings.ToLower(strings.TrimSpace(email)))
}

// The expiry is set by the first hit only, inside the same script, so a window
// can never be left without a TTL.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

type redisCounter struct {
	client redis.UniversalClient
}

func (c *redisCounter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := incrWindowScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

type memoryWindow struct {
	hits    int64
	resetAt time.Time
}

// memoryCounter drops expired windows every pruneEvery increments.
type memoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*memoryWindow
	ops     int
}

const pruneEvery = 1024

func (c *memoryCounter) incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.ops++
	if c.ops%pruneEvery == 0 {
		for k, w := range c.windows {
			if !now.Before(w.resetAt) {
				delete(c.windows, k)
			}
		}
	}

	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	w.hits++
	return w.hits, nil
}
