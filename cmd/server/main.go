package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuepool/backend/internal/admin"
	"github.com/cuepool/backend/internal/api"
	"github.com/cuepool/backend/internal/config"
	"github.com/cuepool/backend/internal/database"
	"github.com/cuepool/backend/internal/game"
	"github.com/cuepool/backend/internal/match"
	"github.com/cuepool/backend/internal/matchlog"
	"github.com/cuepool/backend/internal/migrations"
	"github.com/cuepool/backend/internal/notify"
	"github.com/cuepool/backend/internal/queue"
	redisconn "github.com/cuepool/backend/internal/redis"
	"github.com/cuepool/backend/internal/store"
	"github.com/cuepool/backend/internal/wallet"
	"github.com/cuepool/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Redis is used for the persistence backend, queue depth mirror, and
	// notification fanout. The server still runs without it.
	rdb, err := redisconn.Connect(cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable (%v); running single-instance with log notifications", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	// Select the persistence backend.
	var db store.Store
	switch cfg.StoreBackend {
	case "postgres":
		sqlDB, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer sqlDB.Close()

		if os.Getenv("MIGRATE_ON_START") == "true" {
			log.Println("Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		db = store.NewPostgres(sqlDB)
		log.Println("[STORE] using Postgres persistence backend")
	case "redis":
		if rdb == nil {
			log.Fatalf("STORE_BACKEND=redis but Redis is unreachable")
		}
		db = store.NewRedis(rdb, "cuepool")
		log.Println("[STORE] using Redis persistence backend")
	default:
		db = store.NewMemory()
		log.Println("[STORE] using in-memory persistence backend (state lost on restart)")
	}

	// Construct the core components. All state is authoritative in memory;
	// the store is a write-behind durability port.
	ledger := wallet.NewLedger(db)
	archive := matchlog.NewArchive(db)

	ctx := context.Background()
	if err := ledger.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore wallet state: %v", err)
	}
	if err := archive.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore match archive: %v", err)
	}

	q := queue.New(ledger, cfg.StakeOptions)
	lifecycle, err := match.NewLifecycle(ledger, archive, match.Split{
		WinnerPercent:   cfg.WinnerPercentage,
		OperatorPercent: 100 - cfg.WinnerPercentage,
	}, cfg.OperatorUserID)
	if err != nil {
		log.Fatalf("Invalid prize split configuration: %v", err)
	}

	var notifier notify.Notifier
	if rdb != nil {
		notifier = notify.NewRedisNotifier(rdb, "cuepool")
	} else {
		notifier = notify.LogNotifier{}
	}

	mgr := game.NewManager(cfg, ledger, q, lifecycle, archive, notifier, rdb)
	adminSvc := admin.NewService(db, ledger, archive, cfg.OperatorUserID)

	// Background workers.
	game.StartExpiryWorker(ctx, mgr)
	hub := ws.NewHub()
	ws.StartMatchEventSubscriber(ctx, hub, rdb, "cuepool")

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, cfg, mgr, ledger, adminSvc, hub)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting CuePool server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
