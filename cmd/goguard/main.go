// Command goguard runs the security gateway as a standalone HTTP service.
//
//	goguard -config goguard.yaml
//
// Settings come from the optional YAML file and GOGUARD_* environment
// variables. Without redis.addr the engine keeps state in process; with
// redis.embedded it starts a miniredis instance, which is useful for demos
// and local testing of the shared-state code paths.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/config"
	promexport "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/rbac"
	"github.com/MrEthical07/goGuard/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "goguard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(file.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := file.EngineConfig()
	if err != nil {
		return err
	}
	policy, err := file.Policy()
	if err != nil {
		return err
	}

	client, closeRedis, err := newRedis(file.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	builder := goGuard.New().
		WithConfig(cfg).
		WithPolicy(policy).
		WithLogger(logger)
	if client != nil {
		builder = builder.WithRedis(client)
	}
	if file.DeviceRisk {
		builder = builder.WithRiskPolicy(session.DeviceChangePolicy{})
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()
	logPosture(logger, engine.SecurityReport())
	if err := seedAdmin(engine, file.Admin, logger); err != nil {
		return err
	}

	var metrics http.Handler
	if cfg.Metrics.Enabled {
		metrics, err = promexport.Handler(engine)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	var opts []middleware.Option
	opts = append(opts, middleware.WithLogger(logger.Named("http")))
	if file.Server.TrustForwardedFor {
		opts = append(opts, middleware.WithTrustForwardedFor())
	}
	if cfg.CSRF.HeaderName != "" {
		opts = append(opts, middleware.WithCSRFHeader(cfg.CSRF.HeaderName))
	}

	srv := &http.Server{
		Addr:              file.Server.Addr,
		Handler:           newRouter(engine, logger.Named("http"), metrics, opts...),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.RunSweeper(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), file.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// newRedis returns nil when no shared state is configured.
func newRedis(cfg config.RedisConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Addr
	var mr *miniredis.Miniredis
	if addr == "" {
		if !cfg.Embedded {
			logger.Info("no redis configured; state is process-local")
			return nil, func() {}, nil
		}
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		logger.Info("using embedded redis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, cleanup, nil
}

func logPosture(logger *zap.Logger, r goGuard.SecurityReport) {
	logger.Info("security posture",
		zap.Bool("production_mode", r.ProductionMode),
		zap.Bool("shared_state", r.SharedState),
		zap.Duration("access_ttl", r.AccessTTL),
		zap.Duration("refresh_ttl", r.RefreshTTL),
		zap.Int("max_concurrent_sessions", r.MaxConcurrent),
		zap.Bool("lockout", r.LockoutActive),
		zap.Bool("rate_limiting", r.RateLimitingActive),
		zap.Bool("csrf_strict", r.CSRFStrict),
		zap.Bool("audit", r.AuditEnabled),
	)
	for _, f := range r.Findings {
		logger.Warn("config finding",
			zap.String("code", f.Code),
			zap.String("severity", f.Severity.String()),
			zap.String("message", f.Message),
		)
	}
}

// seedAdmin creates the configured administrator. An existing account is
// left untouched, so restarts are harmless.
func seedAdmin(engine *goGuard.Engine, admin config.AdminConfig, logger *zap.Logger) error {
	if admin.Email == "" {
		return nil
	}
	err := engine.Register(context.Background(), goGuard.RegisterRequest{
		UserID:   admin.UserID,
		Email:    admin.Email,
		Password: admin.Password,
		Role:     rbac.RoleAdmin,
	})
	switch {
	case err == nil:
		logger.Info("admin account created", zap.String("user_id", admin.UserID))
	case errors.Is(err, goGuard.ErrAccountExists):
		logger.Debug("admin account already exists", zap.String("user_id", admin.UserID))
	default:
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
