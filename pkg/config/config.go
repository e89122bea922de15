// Package config loads environment-driven settings for the arena core.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the competition core.
type Config struct {
	Port string

	// Simulation
	Symbols         []string
	ReferenceSymbol string
	InitialBalance  float64
	TickInterval    time.Duration
	HistoryCap      int

	// Feed
	FeedStartPrice float64
	FeedStep       float64 // max fractional move per tick

	// Roster
	RosterPath string

	// Journal
	EnableJournal bool
	JournalDBPath string

	// Auth
	JWTSecret string
	AdminKey  string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "BTC,ETH,SOL")),
		ReferenceSymbol: getEnv("REFERENCE_SYMBOL", "BTC"),
		InitialBalance:  getEnvFloat("INITIAL_BALANCE", 10000.0),
		TickInterval:    time.Duration(getEnvInt("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
		HistoryCap:      getEnvInt("HISTORY_CAP", 1000),
		FeedStartPrice:  getEnvFloat("FEED_START_PRICE", 100000.0),
		FeedStep:        getEnvFloat("FEED_STEP", 0.002),
		RosterPath:      getEnv("ROSTER_PATH", "./traders.yaml"),
		EnableJournal:   getEnv("ENABLE_JOURNAL", "true") == "true",
		JournalDBPath:   getEnv("JOURNAL_DB_PATH", "./data/journal.db"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		AdminKey:        getEnv("ADMIN_KEY", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
