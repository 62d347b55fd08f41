package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MrEthical07/userauth"
	"github.com/MrEthical07/userauth/internal/observability"
	"github.com/MrEthical07/userauth/middleware"
)

const requestIDHeader = "X-Request-ID"

// Checker reports whether a dependency is healthy.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Options struct {
	Engine   *userauth.Engine
	Logger   *slog.Logger
	Reporter *observability.Reporter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health maps a dependency name to its check for /healthz.
	Health map[string]Checker
}

type api struct {
	engine   *userauth.Engine
	logger   *slog.Logger
	reporter *observability.Reporter
	health   map[string]Checker
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &api{
		engine:   opts.Engine,
		logger:   logger,
		reporter: opts.Reporter,
		health:   opts.Health,
	}

	r := gin.New()
	r.Use(a.requestContext(), a.recoverer(), a.accessLog())

	r.GET("/healthz", a.healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	auth := r.Group("/api/auth")
	auth.POST("/register", a.register)
	auth.POST("/login", a.login)
	auth.POST("/refresh", a.refresh)
	auth.GET("/verify-email", a.verifyEmail)
	auth.POST("/resend-verification", a.resendVerification)
	auth.POST("/forgot-password", a.forgotPassword)
	auth.GET("/reset-password", a.checkResetToken)
	auth.POST("/reset-password", a.resetPassword)

	protected := auth.Group("", middleware.RequireAccess(opts.Engine))
	protected.POST("/logout", a.logout)
	protected.GET("/me", a.me)
	protected.DELETE("/me", a.deleteAccount)
	protected.POST("/change-password", a.changePassword)

	return r
}

// requestContext assigns a request id and copies it with the client IP onto the
// request context for audit events.
func (a *api) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := userauth.WithRequestID(c.Request.Context(), id)
		ctx = userauth.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *api) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info("http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", c.Writer.Header().Get(requestIDHeader)),
		)
	}
}

func (a *api) recoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				a.reporter.CapturePanic(rec, map[string]string{"path": c.FullPath()})
				a.logger.Error("panic_recovered",
					slog.String("path", c.Request.URL.Path),
					slog.Any("panic", rec),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			}
		}()
		c.Next()
	}
}

func (a *api) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.health))
	for name, check := range a.health {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

// fail writes the mapped error. 5xx errors are logged and reported.
func (a *api) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		a.reporter.CaptureError(err, map[string]string{"path": c.FullPath()})
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}
