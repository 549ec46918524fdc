package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Server
	Port        string
	FrontendURL string

	// Persistence
	StoreBackend string // memory | redis | postgres
	DatabaseURL  string
	RedisURL     string

	// Game Settings
	StakeOptions     []int64 // allowed stake tiers, in paise
	WinnerPercentage int
	OperatorUserID   string
	MatchDurationSec int
	ExpiryPollSec    int

	// Wallet Limits (paise)
	MinDepositPaise    int64
	MaxDepositPaise    int64
	MinWithdrawalPaise int64
	MaxWithdrawalPaise int64

	// Security
	JWTSecret         string
	SessionTimeoutMin int
	OperatorTokenHash string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Persistence
		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		DatabaseURL:  getEnv("DATABASE_URL", "postgres://localhost:5432/cuepool?sslmode=disable"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Game Settings
		StakeOptions:     getEnvInt64List("STAKE_OPTIONS", []int64{1000, 2000, 5000, 10000}),
		WinnerPercentage: getEnvInt("WINNER_PERCENTAGE", 80),
		OperatorUserID:   getEnv("OPERATOR_USER_ID", "operator"),
		MatchDurationSec: getEnvInt("MATCH_DURATION_SECONDS", 600),
		ExpiryPollSec:    getEnvInt("EXPIRY_POLL_SECONDS", 30),

		// Wallet Limits
		MinDepositPaise:    getEnvInt64("MIN_DEPOSIT_PAISE", 1000),
		MaxDepositPaise:    getEnvInt64("MAX_DEPOSIT_PAISE", 10000000),
		MinWithdrawalPaise: getEnvInt64("MIN_WITHDRAWAL_PAISE", 1000),
		MaxWithdrawalPaise: getEnvInt64("MAX_WITHDRAWAL_PAISE", 5000000),

		// Security
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTimeoutMin: getEnvInt("SESSION_TIMEOUT_MINUTES", 30),
		OperatorTokenHash: getEnv("OPERATOR_TOKEN_HASH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64List(key string, defaultValue []int64) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int64
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
