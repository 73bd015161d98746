// Package main provides the main entry point for the TokoPulse rule execution engine
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tokopulse/tokopulse/app/middleware"
	"github.com/tokopulse/tokopulse/app/scheduler"
	"github.com/tokopulse/tokopulse/app/services"
	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/engine"
	"github.com/tokopulse/tokopulse/repository"
)

// Application represents the main application structure
type Application struct {
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting TokoPulse rule execution engine...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start health server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Health server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers before closing the server
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// Sessions and execution leases live here; without Redis the engine cannot
// authenticate to the platform, so a failure is fatal.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, fmt.Errorf("redis cache is required (sessions and leases), got provider=%q enabled=%v",
			cfg.Provider, cfg.Enabled)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// startMetricsServer serves the Prometheus registry on its own port so the
// scrape surface stays off the health listener.
func startMetricsServer(cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server starting on %s%s", srv.Addr, path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// newHealthServer builds the minimal HTTP surface: liveness and readiness.
// Rule management has its own API service; this process only executes.
func newHealthServer(cfg *config.ProductionConfig, db *gorm.DB, rc *redis.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})
	app.Use(middleware.Metrics())

	app.Get("/livez", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/healthz", func(c fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "database": err.Error()})
		}
		if err := rc.Ping(ctx).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "redis": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval))

	// Shared rotated logger for the scheduler and the engine
	logger := scheduler.NewSchedulerLogger(cfg.Logging)

	// Repositories
	ruleRepo := repository.NewRuleRepository(db)
	logRepo := repository.NewExecutionLogRepository(db)

	// Outward-facing services
	platformClient := services.NewHTTPPlatformClient(cfg.Platform)
	credProvider := services.NewRedisCredentialProvider(rc, cfg.Cache.RedisPrefix, logger)
	telegramService := services.NewTelegramService(cfg.Telegram)

	// Engine assembly
	var leaser engine.Leaser
	if cfg.Engine.LeaseEnabled {
		leaser = engine.NewRedisLease(rc, cfg.Cache.RedisPrefix, cfg.Engine.LeaseTTL)
	}
	actionExecutor := engine.NewActionExecutor(platformClient, cfg.Engine, logger)
	recorder := engine.NewExecutionRecorder(logRepo, ruleRepo, logger)
	dispatcher := engine.NewNotificationDispatcher(telegramService, cfg.Engine.NotifyQueueSize, logger)
	stopFuncs = append(stopFuncs, dispatcher.Start(context.Background()))

	executor := engine.NewRuleExecutor(
		credProvider,
		platformClient,
		actionExecutor,
		recorder,
		dispatcher,
		leaser,
		cfg.Engine,
		logger,
	)

	if cfg.Scheduler.Enabled {
		ruleScheduler := scheduler.NewRuleScheduler(ruleRepo, logRepo, executor, cfg.Scheduler, logger)
		stopFuncs = append(stopFuncs, ruleScheduler.Start(context.Background()))
		log.Printf("Rule scheduler started with poll interval %s", cfg.Scheduler.PollInterval)
	} else {
		log.Println("Rule scheduler disabled by configuration")
	}

	stopFuncs = append(stopFuncs, startMetricsServer(cfg.Metrics))

	return &Application{
		config:    cfg,
		server:    newHealthServer(cfg, db, rc),
		stopFuncs: stopFuncs,
	}, nil
}
