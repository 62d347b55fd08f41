// Command userauthd serves the userauth engine over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/userauth"
	"github.com/MrEthical07/userauth/internal/httpapi"
	"github.com/MrEthical07/userauth/internal/notify"
	"github.com/MrEthical07/userauth/internal/observability"
	"github.com/MrEthical07/userauth/internal/settings"
	"github.com/MrEthical07/userauth/internal/sqlstore"
	"github.com/MrEthical07/userauth/metrics/export/prometheus"
	otelexport "github.com/MrEthical07/userauth/metrics/export/otel"
	"github.com/MrEthical07/userauth/refresh"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "userauthd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := settings.Load(settings.Options{DotEnv: []string{".env"}})
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	reporter, err := observability.NewReporter(observability.SentryOptions{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	})
	if err != nil {
		logger.Error("init_sentry_failed", slog.Any("error", err))
		reporter = nil
	}
	defer reporter.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	health := map[string]httpapi.Checker{
		"redis": httpapi.CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}

	builder := userauth.New().
		WithConfig(cfg.AuthConfig()).
		WithRedis(rdb).
		WithLogger(logger).
		WithAuditSink(userauth.NewSlogSink(logger))

	var refreshStore refresh.Store
	if cfg.Database.DSN != "" {
		dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
		if err != nil {
			return err
		}
		db, err := sqlstore.Open(ctx, dialect, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		store := db.RefreshTokens()
		refreshStore = store
		builder.WithCredentialStore(db.Credentials()).WithRefreshStore(store)
		health["database"] = db
	} else {
		logger.Warn("no database configured; accounts live in an in-memory sqlite database")
		db, err := sqlstore.Open(ctx, sqlstore.SQLite, "file:userauthd?mode=memory&cache=shared")
		if err != nil {
			return fmt.Errorf("open in-memory database: %w", err)
		}
		defer db.Close()
		builder.WithCredentialStore(db.Credentials())
		health["database"] = db
	}

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()
	builder.WithNotifier(notifier)

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if refreshStore == nil {
		refreshStore = refresh.NewRedisStore(rdb, cfg.AuthConfig().Refresh.RedisPrefix)
	}
	sweeper := refresh.NewSweeper(refreshStore, cfg.Auth.RefreshSweepInterval, logger)
	sweeper.OnError = func(err error) {
		reporter.CaptureError(err, map[string]string{"component": "refresh_sweeper"})
	}
	go sweeper.Run(ctx)

	exporter, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/MrEthical07/userauth"), engine)
	if err != nil {
		logger.Warn("otel metrics exporter disabled", slog.Any("error", err))
	} else {
		defer func() { _ = exporter.Close() }()
	}

	opts := httpapi.Options{
		Engine:   engine,
		Logger:   logger,
		Reporter: reporter,
		Health:   health,
	}
	if cfg.HTTP.MetricsEnabled {
		opts.Metrics = prometheus.NewExporter(engine).Handler()
	}
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("audit drain incomplete", slog.Any("error", err))
	}
	return nil
}

// openRedis connects to the configured server, or starts an in-process
// miniredis when Embedded is set.
func openRedis(cfg settings.Redis, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		logger.Warn("using embedded redis; data is lost on exit", slog.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func newNotifier(cfg *settings.Settings, logger *slog.Logger) (userauth.Notifier, func(), error) {
	templates := notify.Templates{
		AppName:        cfg.SMTP.AppName,
		BaseURL:        cfg.SMTP.BaseURL,
		VerifyValidFor: cfg.Auth.VerificationTTL,
		ResetValidFor:  cfg.Auth.ResetTTL,
	}
	if cfg.SMTP.Host == "" {
		return notify.NewLogNotifier(logger, templates), func() {}, nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		From:      cfg.SMTP.From,
		Templates: templates,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}
