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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"tiergate/internal/api"
	"tiergate/internal/config"
	"tiergate/internal/metrics"
	"tiergate/internal/middleware"
	"tiergate/internal/observability"
	"tiergate/internal/pipeline"
	"tiergate/internal/providers"
	"tiergate/internal/router"
	"tiergate/internal/store"
	"tiergate/internal/usage"
	"tiergate/internal/webhook"
)

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	cfg := config.Load()

	switch cmd {
	case "migrate":
		runMigrations(cfg)
		return
	case "seed":
		runSeed(cfg)
		return
	default:
		// serve
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitTracer(ctx, cfg.OtelEndpoint, cfg.OtelServiceName)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	tiers, err := cfg.Tiers()
	if err != nil {
		logger.Fatal("invalid tier table", zap.Error(err))
	}
	table, err := providers.NewTable(tiers)
	if err != nil {
		logger.Fatal("invalid tier table", zap.Error(err))
	}
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty; admin API will reject every request")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	st := store.New(pool)
	counters, err := counterStore(cfg, pool, redisClient)
	if err != nil {
		logger.Fatal("counter backend", zap.Error(err))
	}
	acct := usage.NewAccountant(counters)

	policies := store.NewPolicyCache(st, redisClient, logger)
	go policies.Listen(ctx)

	var health redis.Cmdable
	if redisClient != nil {
		health = redisClient
	}
	rt := router.New(table, config.ModelNames(tiers), acct, cfg.FallbackToCheap, health, logger)
	metrics.Register()

	p := &pipeline.Pipeline{
		Users:      st,
		System:     policies,
		Accountant: acct,
		Router:     rt,
		Logs:       st,
		Alerts:     webhook.New(cfg.AlertWebhookURLs, cfg.AlertWebhookSecret, logger),
		Auto:       cfg.Auto(),
		Location:   loc,
		Logger:     logger,
	}
	srv := &api.Server{
		Pipeline:          p,
		Store:             st,
		System:            policies,
		Counters:          counters,
		Health:            rt,
		Location:          loc,
		Logger:            logger,
		DefaultThresholds: cfg.Thresholds(),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"}, AllowedHeaders: []string{"*"}}))
	r.Use(func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "http") })
	r.Handle("/metrics", promhttp.Handler())
	srv.Mount(r, middleware.WithUserToken(st, logger), middleware.AdminToken(cfg.AdminToken))

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server starting",
		zap.String("addr", httpSrv.Addr),
		zap.String("counter_backend", cfg.CounterBackend),
		zap.Int("tiers", len(table)),
		zap.Bool("fallback", cfg.FallbackToCheap),
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func counterStore(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (usage.CounterStore, error) {
	switch cfg.CounterBackend {
	case config.BackendPostgres, "":
		return store.NewRollupStore(pool), nil
	case config.BackendRedis:
		if redisClient == nil {
			return nil, errors.New("COUNTER_BACKEND=redis requires REDIS_URL")
		}
		return usage.NewRedisStore(redisClient, ""), nil
	case config.BackendMemory:
		return usage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown COUNTER_BACKEND %q", cfg.CounterBackend)
	}
}

func runMigrations(cfg config.Config) {
	flag.CommandLine.Parse(os.Args[2:])
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Println("db connect failed:", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := migrateDir(ctx, pool, resolvePath("migrations")); err != nil {
		fmt.Println("migrate failed:", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}

func runSeed(cfg config.Config) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Println("db connect failed:", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := seedData(ctx, pool); err != nil {
		fmt.Println("seed failed:", err)
		os.Exit(1)
	}
	fmt.Println("seed completed")
}

func migrateDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}
		b, err := os.ReadFile(dir + "/" + name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (filename, applied_at) VALUES ($1,$2)`, name, time.Now().UTC()); err != nil {
			return err
		}
		fmt.Println("applied", name)
	}
	return nil
}

func seedData(ctx context.Context, pool *pgxpool.Pool) error {
	b, err := os.ReadFile(resolvePath("scripts/seed.sql"))
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, string(b))
	return err
}

func resolvePath(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if _, err := os.Stat("../" + path); err == nil {
		return "../" + path
	}
	return path
}
