package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/cuepool/backend/internal/admin"
	"github.com/cuepool/backend/internal/config"
	"github.com/cuepool/backend/internal/database"
	redisconn "github.com/cuepool/backend/internal/redis"
	"github.com/cuepool/backend/internal/store"
)

// Seeds the operator console token into the configured persistence backend.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	var db store.Store
	switch cfg.StoreBackend {
	case "postgres":
		sqlDB, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer sqlDB.Close()
		db = store.NewPostgres(sqlDB)
	case "redis":
		rdb, err := redisconn.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		db = store.NewRedis(rdb, "cuepool")
	default:
		log.Fatalf("STORE_BACKEND must be postgres or redis to seed a durable operator token")
	}

	token := os.Getenv("OPERATOR_TOKEN")
	if token == "" {
		token = "change-me-in-production"
		log.Printf("WARNING: Using default operator token. Set OPERATOR_TOKEN env var in production!")
	}

	svc := admin.NewService(db, nil, nil, cfg.OperatorUserID)
	if err := svc.SetOperatorToken(context.Background(), token); err != nil {
		log.Fatalf("Failed to seed operator token: %v", err)
	}

	log.Println("Operator token seeded successfully")
	log.Printf("  Backend: %s", cfg.StoreBackend)
	log.Println("\nUse it as a bearer token on /api/v1/admin routes.")
}
