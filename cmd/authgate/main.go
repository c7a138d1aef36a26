// Package main is the entry point for the authgate server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/workboard/authgate/internal/capability"
	"github.com/workboard/authgate/internal/config"
	"github.com/workboard/authgate/internal/gate"
	"github.com/workboard/authgate/internal/observability"
	"github.com/workboard/authgate/internal/policy"
	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "authgate", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Role policy: resource schemas and role grants.
	rolePolicy, err := policy.NewPolicy(cfg.Policy.File)
	if err != nil {
		logger.Error("role policy load failed", zap.Error(err))
		return 1
	}
	metrics.SetPolicyResources(float64(rolePolicy.Resources()))

	// Shared capability cache.
	cache, cacheCloser, err := buildCache(cfg.Cache, logger)
	if err != nil {
		logger.Error("capability cache initialization failed", zap.Error(err))
		return 1
	}

	// Authoritative role store.
	roleStore, storeCloser, err := buildRoleStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("role store initialization failed", zap.Error(err))
		return 1
	}

	resolver := capability.NewResolver(cache, roleStore, rolePolicy,
		capability.WithTTL(cfg.Cache.TTL),
		capability.WithStoreTimeout(cfg.Store.Timeout),
		capability.WithLogger(logger),
		capability.WithCacheHooks(metrics.RecordCapabilityCacheHit, metrics.RecordCapabilityCacheMiss),
		capability.WithInvalidateHook(metrics.RecordInvalidation),
		capability.WithStoreObserver(metrics.RecordStoreRequest),
	)

	engine := policy.NewEngine(rolePolicy)
	authz := gate.New(resolver, engine,
		gate.WithLogger(logger),
		gate.WithStepObserver(metrics.ObserveGateStep),
		gate.WithDecisionObserver(metrics.RecordDecision),
	)

	// SIGHUP reloads the role policy file in place.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := rolePolicy.Sync(); err != nil {
				logger.Error("role policy reload failed", zap.Error(err))
				metrics.RecordPolicyReload("error")
				continue
			}
			metrics.RecordPolicyReload("ok")
			metrics.SetPolicyResources(float64(rolePolicy.Resources()))
			logger.Info("role policy reloaded", zap.Int("resources", rolePolicy.Resources()))
		}
	}()

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readinessChecks := observability.ReadinessChecks{
		PolicyLoaded: func() bool { return rolePolicy.Resources() > 0 },
	}
	if hc, ok := cache.(observability.HealthChecker); ok {
		readinessChecks.Cache = hc
	}
	if hc, ok := roleStore.(observability.HealthChecker); ok {
		readinessChecks.RoleStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Gate:         authz,
		Capabilities: resolver,
		Invalidator:  resolver,
		AdminToken:   os.Getenv(cfg.Admin.TokenEnv),
		Metrics:      observability.Handler(),
		Health:       observability.HandleHealth(),
		Ready:        observability.HandleReady(readinessChecks),
	})

	handler := metrics.MetricsMiddleware(observability.TracingMiddleware(router))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("policy_resources", rolePolicy.Resources()),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("store_driver", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}
	if cacheCloser != nil {
		cacheCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildCache creates the shared capability cache based on config.
func buildCache(cfg config.CacheConfig, logger *zap.Logger) (capability.Cache, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory capability cache")
		return capability.NewMemoryCache(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("capability cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.DB,
		})
		return capability.NewRedisCache(client), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver: %q", cfg.Driver)
	}
}

// buildRoleStore creates the authoritative role store based on config.
func buildRoleStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.RoleStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory role store")
		return store.NewMemoryRoleStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("role store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("role store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxConns)
		poolCfg.MinConns = int32(cfg.MinConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("role store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("role store: ping: %w", err)
		}

		return store.NewPgRoleStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported role store driver: %q", cfg.Driver)
	}
}
