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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/runlab/orchestrator/internal/config"
	"github.com/runlab/orchestrator/internal/dispatch"
	"github.com/runlab/orchestrator/internal/hub"
	"github.com/runlab/orchestrator/internal/idempotency"
	"github.com/runlab/orchestrator/internal/ledger"
	"github.com/runlab/orchestrator/internal/limiter"
	"github.com/runlab/orchestrator/internal/policy"
	"github.com/runlab/orchestrator/internal/service"
	"github.com/runlab/orchestrator/internal/store"
	"github.com/runlab/orchestrator/internal/transport/http/internalapi"
	v1 "github.com/runlab/orchestrator/internal/transport/http/v1"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting orchestrator...")
	log.Printf("External HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Internal HTTP Port: %d", cfg.InternalPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize broker backends. With no redis address configured
	// everything runs in process (single-node mode).
	var (
		dedupLedger ledger.Ledger
		idemCache   idempotency.Cache
		slotLimiter limiter.Limiter
		queue       dispatch.Queue
	)
	if cfg.RedisAddr != "" {
		log.Printf("Redis: %s", cfg.RedisAddr)
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		dedupLedger = ledger.NewRedisLedger(client, cfg.DedupRetention)
		idemCache = idempotency.NewRedisCache(client, cfg.IdempotencyTTL)
		slotLimiter = limiter.NewRedisLimiter(client, cfg.SlotCapacity, cfg.LockTimeout)
		queue = dispatch.NewRedisQueue(client, cfg.QueueKey, cfg.QueueMaxAttempts, cfg.QueueBackoffBase)
	} else {
		log.Printf("Redis: disabled, using in-process backends")
		dedupLedger = ledger.NewMemoryLedger(cfg.DedupRetention)
		idemCache = idempotency.NewMemoryCache(cfg.IdempotencyTTL)
		slotLimiter = limiter.NewMemoryLimiter(cfg.SlotCapacity, cfg.LockTimeout)
		queue = dispatch.NewMemoryQueue(cfg.QueueMaxAttempts, cfg.QueueBackoffBase)
	}

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize watcher hub
	watchHub := hub.NewHub()
	go watchHub.Run()

	// Initialize service
	svc := service.New(db, dedupLedger, idemCache, slotLimiter, queue, policyEngine, watchHub, cfg)

	// Initialize handlers
	h := v1.NewHandler(svc)
	internalH := internalapi.NewHandler(svc)

	// Create external Echo server
	externalServer := echo.New()
	externalServer.HideBanner = true

	// Middleware
	externalServer.Use(middleware.Logger())
	externalServer.Use(middleware.Recover())
	externalServer.Use(middleware.CORS())

	// Register external routes (producers and operators)
	h.RegisterRoutes(externalServer)

	// Create internal Echo server (for workers only)
	internalServer := echo.New()
	internalServer.HideBanner = true

	// Middleware
	internalServer.Use(middleware.Logger())
	internalServer.Use(middleware.Recover())

	// Register internal routes
	internalH.RegisterRoutes(internalServer)

	// Start external server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := externalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start external server: %v", err)
		}
	}()

	// Start internal server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start internal server: %v", err)
		}
	}()

	log.Printf("External API started on port %d", cfg.HTTPPort)
	log.Printf("Internal API started on port %d", cfg.InternalPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown both servers
	if err := externalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown external server gracefully: %v", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown internal server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
