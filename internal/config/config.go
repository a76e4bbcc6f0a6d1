// Package config loads the engine's configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the complete engine configuration.
type Config struct {
	Port string

	// DatabaseURL selects the Postgres store; empty falls back to the
	// in-memory store. RedisURL optionally layers the read-through cache.
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// WalletURL selects the HTTP wallet client; empty falls back to the
	// in-memory wallet (development only).
	WalletURL     string
	WalletTimeout time.Duration
	WalletRPS     float64

	// Fee rates applied when a market carries no override.
	PlatformFeeRate decimal.Decimal
	CreatorFeeRate  decimal.Decimal

	// PlatformAccount receives the platform fee share.
	PlatformAccount string

	// SeedLiquidity is the default liquidity split across a new market's
	// two pools.
	SeedLiquidity decimal.Decimal

	// SweepSchedule is the cron spec for the settlement sweeper.
	SweepSchedule string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		WalletURL:       os.Getenv("WALLET_URL"),
		PlatformAccount: getenv("PLATFORM_ACCOUNT", "platform"),
		SweepSchedule:   getenv("SWEEP_SCHEDULE", "@every 1m"),
	}

	var err error
	if cfg.PlatformFeeRate, err = decimalEnv("PLATFORM_FEE_RATE", "0.02"); err != nil {
		return nil, err
	}
	if cfg.CreatorFeeRate, err = decimalEnv("CREATOR_FEE_RATE", "0.10"); err != nil {
		return nil, err
	}
	if cfg.SeedLiquidity, err = decimalEnv("SEED_LIQUIDITY", "2000"); err != nil {
		return nil, err
	}
	if cfg.SeedLiquidity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("config: SEED_LIQUIDITY must be positive, got %s", cfg.SeedLiquidity)
	}

	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WalletTimeout, err = durationEnv("WALLET_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WalletRPS, err = floatEnv("WALLET_RPS", 20); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	v := getenv(key, fallback)
	dec, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s=%q is not a decimal: %w", key, v, err)
	}
	return dec, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration: %w", key, v, err)
	}
	return dur, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number: %w", key, v, err)
	}
	return f, nil
}
