package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"readtrack/internal/abuse/botdetect"
	"readtrack/internal/abuse/readtime"
	engcfg "readtrack/internal/config"
	"readtrack/internal/infra/counterstore"
	"readtrack/internal/infra/db"
	"readtrack/internal/infra/feedsignal"
	"readtrack/internal/observability/logging"
	"readtrack/internal/observability/tracing"
	"readtrack/pkg/config"
	"readtrack/pkg/ratelimit"

	achUC "readtrack/internal/usecase/achievement"
	progUC "readtrack/internal/usecase/progress"

	pgRepo "readtrack/internal/infra/adapter/persistence/postgres"

	hhttp "readtrack/internal/handler/http"
	"readtrack/internal/handler/http/middleware"
	hprogress "readtrack/internal/handler/http/progress"
	"readtrack/internal/handler/http/requestid"
)

const (
	// In-memory counter store capacity when Redis is absent (or as the
	// failover fallback).
	memoryStoreMaxKeys = 100_000

	// 読了シグナルのユーザー毎レート上限
	feedSignalMaxPerSecond = 2.0
)

func main() {
	logger := initLogger()
	validateJWTSecret(logger)
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	version := getVersion()
	components := setupServer(logger, database, version)

	runServer(logger, components, version)
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// validateJWTSecret validates the JWT_SECRET environment variable for security requirements.
func validateJWTSecret(logger *slog.Logger) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(1)
	}
	// セキュリティ: 最小32文字（256ビット）を強制
	if len(secret) < 32 {
		logger.Error("JWT_SECRET must be at least 32 characters (256 bits)")
		os.Exit(1)
	}
	// セキュリティ: よくある弱い秘密鍵を拒否
	weakSecrets := []string{"secret", "password", "test", "admin", "default"}
	for _, weak := range weakSecrets {
		if secret == weak || secret == weak+"123" {
			logger.Error("JWT_SECRET must not be a common weak value", slog.String("weak_value", weak))
			os.Exit(1)
		}
	}
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// ServerComponents holds components needed for server operation and cleanup.
type ServerComponents struct {
	Handler http.Handler
	Redis   *redis.Client
}

// loadBudgets resolves the rate budgets: environment variables provide the
// base, and an ENGINE_CONFIG file overrides them when present.
func loadBudgets(logger *slog.Logger, engineCfg *engcfg.EngineConfig, fromFile bool) config.Budgets {
	budgets := config.LoadBudgets()
	if !fromFile {
		return budgets
	}

	budgets.UserRequest = ratelimit.Budget{
		Limit:  engineCfg.Budgets.RequestLimit,
		Window: engineCfg.Budgets.RequestWindow,
	}
	budgets.Reward = ratelimit.Budget{
		Limit:  engineCfg.Budgets.RewardLimit,
		Window: engineCfg.Budgets.RewardWindow,
	}
	budgets.IPRequest = ratelimit.Budget{
		Limit:  engineCfg.Budgets.IPLimit,
		Window: engineCfg.Budgets.IPWindow,
	}
	logger.Info("rate budgets loaded from engine config file",
		slog.Int("request_limit", budgets.UserRequest.Limit),
		slog.Int("reward_limit", budgets.Reward.Limit))
	return budgets
}

// buildCounterStore builds the counter store backing all budget limiters.
// With REDIS_ADDR set the store is Redis with in-memory failover; without it
// the store is purely in-memory (single-instance deployments).
func buildCounterStore(logger *slog.Logger) (ratelimit.CounterStore, *redis.Client) {
	memory := counterstore.NewMemoryStore(memoryStoreMaxKeys, &ratelimit.SystemClock{})

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Info("rate limiting: in-memory counter store (REDIS_ADDR not set)")
		return memory, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	logger.Info("rate limiting: redis counter store with in-memory failover",
		slog.String("addr", addr))
	return counterstore.NewFailoverStore(counterstore.NewRedisStore(client), memory), client
}

// setupServer configures and returns the HTTP handler with all routes and middleware.
func setupServer(logger *slog.Logger, database *sql.DB, version string) *ServerComponents {
	enginePath := os.Getenv("ENGINE_CONFIG")
	engineCfg, err := engcfg.LoadEngineConfig(enginePath)
	if err != nil {
		logger.Error("failed to load engine configuration", slog.Any("error", err))
		os.Exit(1)
	}

	streakLoc, err := engineCfg.StreakLocation()
	if err != nil {
		logger.Error("invalid streak timezone", slog.Any("error", err))
		os.Exit(1)
	}

	budgets := loadBudgets(logger, engineCfg, enginePath != "")

	store, redisClient := buildCounterStore(logger)
	metrics := ratelimit.NewPrometheusMetrics()
	clock := &ratelimit.SystemClock{}

	userLimiter := ratelimit.NewBudgetLimiter("user", store, clock, metrics)
	ipLimiter := ratelimit.NewBudgetLimiter("ip", store, clock, metrics)
	rewardLimiter := ratelimit.NewBudgetLimiter("reward", store, clock, metrics)

	svc := &progUC.Service{
		Store: pgRepo.NewProgressStore(database),
		Detector: botdetect.NewDetector(botdetect.Config{
			MinSamples:          engineCfg.Detector.MinSamples,
			RegularMeanInterval: engineCfg.Detector.RegularMeanInterval,
			RegularStdDev:       engineCfg.Detector.RegularStdDev,
			RepeatThreshold:     engineCfg.Detector.RepeatThreshold,
			ToggleThreshold:     engineCfg.Detector.ToggleThreshold,
			ToggleWindow:        engineCfg.Detector.ToggleWindow,
		}),
		History: botdetect.NewRecorder(memoryStoreMaxKeys, 0),
		ReadTime: readtime.NewValidator(readtime.Config{
			PerUnitFloor:   engineCfg.ReadTime.PerUnitFloor,
			PerPage:        engineCfg.ReadTime.PerPage,
			MaxJumpChecked: engineCfg.ReadTime.MaxJumpChecked,
		}),
		Evaluator: achUC.NewEvaluator(achUC.DefaultRules()),
		Rewards:   rewardLimiter,
		Feed:      feedsignal.NewSignaler(store, feedSignalMaxPerSecond),
		Cfg: progUC.Config{
			UnitRewardXP:          engineCfg.Engine.UnitRewardXP,
			MaxBackfillBatch:      engineCfg.Engine.MaxBackfillBatch,
			TxTimeout:             engineCfg.Engine.TxTimeout,
			RewardBudget:          budgets.Reward,
			StreakLocation:        streakLoc,
			AchievementRetryDelay: engineCfg.Engine.AchievementRetryDelay,
		},
	}

	identity, err := middleware.NewIdentity()
	if err != nil {
		logger.Error("failed to initialize identity middleware", slog.Any("error", err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	hprogress.Register(mux, svc, identity, userLimiter, budgets.UserRequest)

	var pinger hhttp.RedisPinger
	if redisClient != nil {
		pinger = redisClient
	}
	mux.Handle("GET /healthz", &hhttp.HealthHandler{DB: database, Redis: pinger, Version: version})
	mux.Handle("GET /readyz", &hhttp.ReadyHandler{DB: database})
	mux.Handle("GET /livez", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	handler := applyMiddleware(logger, mux, ipLimiter, budgets.IPRequest)

	return &ServerComponents{Handler: handler, Redis: redisClient}
}

// applyMiddleware wraps the mux with the shared middleware chain.
func applyMiddleware(logger *slog.Logger, handler http.Handler, ipLimiter middleware.BudgetDecider, ipBudget ratelimit.Budget) http.Handler {
	originCfg, err := middleware.LoadOriginConfig()
	if err != nil {
		logger.Error("failed to load origin configuration", slog.Any("error", err))
		os.Exit(1)
	}

	proxyCfg, err := middleware.LoadTrustedProxyConfig()
	if err != nil {
		logger.Error("failed to load trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var ipExtractor middleware.IPExtractor
	if proxyCfg.Enabled {
		ipExtractor = middleware.NewTrustedProxyExtractor(*proxyCfg)
		logger.Info("rate limiting: trusted proxy mode enabled",
			slog.Int("trusted_proxies_count", len(proxyCfg.AllowedCIDRs)))
	} else {
		ipExtractor = &middleware.RemoteAddrExtractor{}
		logger.Info("rate limiting: using RemoteAddr (secure mode, proxy headers ignored)")
	}

	// Build middleware chain.
	// Order (outermost first):
	// 1. Origin check (rejects cross-origin writes early)
	// 2. Request ID
	// 3. Input validation (header/path limits)
	// 4. IP budget (cheap rejection before any real work)
	// 5. Recovery
	// 6. Logging
	// 7. Request timeout
	// 8. Body size limit
	// 9. Content-Type enforcement
	// 10. Metrics
	// 11. Authentication + per-user budget (registered per route)

	chain := handler

	// Apply in reverse order (innermost to outermost)
	chain = hhttp.MetricsMiddleware(chain)
	chain = hhttp.RequireJSON()(chain)
	chain = hhttp.LimitRequestBody(1 << 20)(chain) // 1MB limit
	chain = hhttp.Timeout(30 * time.Second)(chain)
	chain = hhttp.Logging(logger)(chain)
	chain = hhttp.Recover(logger)(chain)
	chain = middleware.IPBudget(ipLimiter, ipBudget, ipExtractor)(chain)
	chain = hhttp.InputValidation()(chain)
	chain = tracing.Middleware(chain)
	chain = requestid.Middleware(chain)
	chain = middleware.Origin(*originCfg)(chain)

	return chain
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(logger *slog.Logger, components *ServerComponents, version string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", ":8080"),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}

	if components.Redis != nil {
		if err := components.Redis.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}
	logger.Info("server stopped")
}
