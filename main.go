package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/config"
	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/eventbus"
	"github.com/atelier-ai/atelier-engine/pkg/handlers"
	"github.com/atelier-ai/atelier-engine/pkg/logging"
	"github.com/atelier-ai/atelier-engine/pkg/metrics"
	"github.com/atelier-ai/atelier-engine/pkg/middleware"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
	"github.com/atelier-ai/atelier-engine/pkg/retry"
	"github.com/atelier-ai/atelier-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database. Retried because the engine often races its database on
	// cold starts.
	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		// Connection errors can echo the DSN, password included.
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := retry.Do(ctx, nil, func() error { return runMigrations(cfg, logger) }); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis is optional; without it, conversation context selections are
	// held in process memory.
	redisClient, err := retry.DoWithResult(ctx, nil, func() (*redis.Client, error) {
		return database.NewRedisClient(&cfg.Redis)
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis",
			zap.String("error", logging.SanitizeError(err)))
	}
	var contextStore repositories.ContextStore
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		contextStore = repositories.NewRedisContextStore(redisClient, cfg.Redis.ContextTTL())
	} else {
		logger.Info("Redis not configured, holding context selections in memory")
		contextStore = repositories.NewMemoryContextStore()
	}

	// Event bus for graph and run change notifications
	bus := eventbus.New(logger)
	defer bus.Close()

	// Repositories
	projectRepo := repositories.NewProjectRepository()
	entityRepo := repositories.NewEntityRepository()
	graphRepo := repositories.NewGraphRepository()
	runRepo := repositories.NewRunRepository()

	// Services
	scopeProvider := database.NewTenantScopeProvider(db)
	projectService := services.NewProjectService(projectRepo, scopeProvider, logger)
	entityService := services.NewEntityService(entityRepo, graphRepo, bus, logger)
	graphService := services.NewGraphService(graphRepo, bus, logger)
	runService := services.NewRunService(runRepo, bus, logger)
	contextService := services.NewContextService(contextStore, entityRepo, logger)

	// Watchdog fails running runs whose worker stopped heartbeating.
	if timeout := cfg.Runs.HeartbeatTimeout(); timeout > 0 {
		watchdog := services.NewRunWatchdog(db, runRepo, runService,
			timeout, cfg.Runs.WatchdogInterval(), logger)
		watchdog.Start(ctx)
		defer watchdog.Stop()
	} else {
		logger.Info("Run watchdog disabled")
	}

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	tenantMiddleware := database.WithTenantContext(db, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewEntitiesHandler(entityService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewGraphHandler(graphService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewRunsHandler(runService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewContextHandler(contextService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewEventsHandler(bus, logger).RegisterRoutes(mux, authMiddleware)

	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.Instrument(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting atelier-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))

		var serveErr error
		if cfg.TLSCertPath != "" {
			serveErr = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(serveErr))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// runMigrations applies pending schema migrations through database/sql,
// which is what golang-migrate drives.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
