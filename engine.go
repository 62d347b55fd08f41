package userauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/userauth/internal/audit"
	"github.com/MrEthical07/userauth/internal/rate"
	"github.com/MrEthical07/userauth/internal/stores"
	"github.com/MrEthical07/userauth/jwt"
	"github.com/MrEthical07/userauth/lockout"
	"github.com/MrEthical07/userauth/password"
	"github.com/MrEthical07/userauth/refresh"
)

const tokenTypeBearer = "Bearer"

// Engine runs the authentication flows. Build it with [Builder]; the zero value
// is not usable.
type Engine struct {
	config       Config
	credentials  CredentialStore
	refreshStore refresh.Store
	tokens       stores.TokenStore
	ownedTokens  *stores.MemoryStore
	throttle     *rate.Limiter
	lockout      lockout.Policy
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
	dummyHash    string
}

// Close flushes buffered audit events and stops the in-memory token janitor.
func (e *Engine) Close() {
	_ = e.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. Audit events still buffered when ctx ends
// keep draining in the background and ctx.Err() is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	if e.ownedTokens != nil {
		e.ownedTokens.Close()
	}
	if e.audit == nil {
		return nil
	}

	err := e.audit.CloseContext(ctx)
	stats := e.audit.Stats()
	e.logger.Info("audit dispatcher stopped",
		slog.Uint64("delivered", stats.Delivered),
		slog.Uint64("dropped", stats.Dropped),
		slog.Uint64("sink_panics", stats.Panics),
	)
	return err
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	return nil
}

// ValidateAccess verifies an access token. Any codec failure is reported as
// ErrInvalidOrExpiredToken wrapping the jwt error.
func (e *Engine) ValidateAccess(_ context.Context, accessToken string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	claims, err := e.jwtManager.Verify(accessToken)
	e.observeSince(MetricValidateLatency, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}

	out := &AccessClaims{
		Subject: claims.Subject,
		Roles:   claims.Roles,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// issueBundle mints an access token and a fresh refresh token for rec. With rotate
// set, every earlier refresh token of the user is revoked in the same step.
func (e *Engine) issueBundle(ctx context.Context, rec *CredentialRecord, now time.Time, rotate bool) (*TokenBundle, error) {
	access, err := e.jwtManager.Issue(rec.Email, []string{string(rec.Role)}, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := refresh.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	expiresAt := now.Add(e.config.JWT.RefreshTTL)

	if rotate {
		err = e.refreshStore.Rotate(ctx, rec.ID, refreshToken, expiresAt)
	} else {
		err = e.refreshStore.Save(ctx, refreshToken, rec.ID, expiresAt)
	}
	if err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenBundle{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    e.accessExpiresIn(),
		Subject:      summarize(rec),
	}, nil
}

// accessExpiresIn is the access token lifetime in whole seconds.
func (e *Engine) accessExpiresIn() int64 {
	return int64(e.config.JWT.AccessTTL / time.Second)
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len([]rune(pw)) < e.config.Password.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if limit := e.config.Password.MaxPasswordBytes; limit > 0 && len(pw) > limit {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordPolicy, limit)
	}
	return nil
}

func (e *Engine) hashPassword(pw string) (string, error) {
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) || errors.Is(err, password.ErrEmptyPassword) {
			return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (e *Engine) allowRequest(ctx context.Context, action, email string) error {
	err := e.throttle.Allow(ctx, action, email)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	default:
		return fmt.Errorf("throttle: %w", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
