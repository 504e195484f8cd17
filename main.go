// Package main provides the main entry point for the Susanoo payout processor
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/mkhoshpour/susanoo/app/handlers"
	"github.com/mkhoshpour/susanoo/app/middleware"
	"github.com/mkhoshpour/susanoo/app/router"
	"github.com/mkhoshpour/susanoo/app/scheduler"
	"github.com/mkhoshpour/susanoo/app/services"
	businessflow "github.com/mkhoshpour/susanoo/business_flow"
	"github.com/mkhoshpour/susanoo/config"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Susanoo application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers before closing the listener
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

	if err := db.AutoMigrate(
		&models.Store{},
		&models.PullPayment{},
		&models.Payout{},
		&models.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig, password string) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB
	if password != "" {
		opt.Password = password
	}

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

// startCacheHealthMonitor periodically pings Redis to surface connectivity
// issues. The returned cancel function stops the monitor.
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

// initializeRails builds the configured payment rails
func initializeRails(cfg config.PayoutsConfig) services.RailRegistry {
	rails := services.RailRegistry{}

	chain := services.NewBitcoinChainRail(cfg.BitcoindRPCURL, cfg.BitcoindRPCUser, cfg.BitcoindRPCPass, cfg.SendTimeout)
	rails[chain.Method()] = chain

	lightning := services.NewLightningRail(cfg.LNDRESTURL, cfg.LNDMacaroonHex, cfg.SendTimeout)
	rails[lightning.Method()] = lightning

	return rails
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache, cfg.Deployment.RedisPassword)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.DefaultTTL)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	storeRepo := repository.NewStoreRepository(db)
	pullPaymentRepo := repository.NewPullPaymentRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Initialize services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	kraken := services.NewKrakenClient(cfg.Rates.KrakenBaseURL, cfg.Rates.RequestTimeout)
	rateService := services.NewRateService(
		map[string]services.RateProvider{kraken.Name(): kraken},
		cfg.Rates.DefaultProvider,
		rc,
		cfg.Rates.CacheTTL,
	)

	rails := initializeRails(cfg.Payouts)

	var events services.EventPublisher = services.NopEventPublisher{}
	if rc != nil {
		events = services.NewRedisEventPublisher(rc, cfg.Cache.RedisPrefix)
	}

	exportService := services.NewXLSXExportService()

	// Initialize flows
	authFlow := businessflow.NewAuthFlow(storeRepo, auditRepo, tokenService, db)

	pullPaymentFlow := businessflow.NewPullPaymentFlow(pullPaymentRepo, storeRepo, auditRepo, rails, events, db)

	payoutFlow := businessflow.NewPayoutFlow(payoutRepo, pullPaymentRepo, auditRepo, rateService, exportService, events, db)

	claimFlow := businessflow.NewClaimFlow(pullPaymentRepo, payoutRepo, storeRepo, auditRepo, rails, payoutFlow, events, db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authFlow, cfg)
	pullPaymentHandler := handlers.NewPullPaymentHandler(pullPaymentFlow, cfg)
	payoutHandler := handlers.NewPayoutHandler(claimFlow, payoutFlow, cfg)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(cfg, authMiddleware, authHandler, pullPaymentHandler, payoutHandler)

	// Start the background payout processor
	processor := scheduler.NewPayoutProcessor(payoutRepo, pullPaymentRepo, auditRepo, rails, events, cfg.Payouts)
	stopProcessor, err := processor.Start(context.Background())
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, stopProcessor)

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
