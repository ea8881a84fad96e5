package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultTrackedCoins is the CoinGecko id set synchronized when
// TRACKED_COINS is not configured.
var DefaultTrackedCoins = []string{
	"bitcoin",
	"binancecoin",
	"ethereum",
	"solana",
	"tether",
	"ripple",
	"usd-coin",
	"dogecoin",
	"the-open-network",
	"cardano",
}

// Gecko holds connection settings for the CoinGecko price API.
type Gecko struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SMTP holds settings for outbound registration mail.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Config struct {
	RedisURL     string
	PublicURL    string
	HTTPPort     int
	MetricsPort  int
	Gecko        Gecko
	TrackedCoins []string
	SyncInterval time.Duration
	CacheTTL     time.Duration
	SMTP         SMTP
}

// Load reads environment variables and application flags (via a local FlagSet),
// strips out any -test.* flags, and validates required fields. A .env file in
// the working directory is applied first when present.
func Load() (*Config, error) {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	// 1. Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	var redisURL string
	var httpPort int
	var metricsPort int
	fs.StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL")
	fs.IntVar(&httpPort, "port", 8080, "HTTP listen port")
	fs.IntVar(&metricsPort, "metrics-port", 8082, "Metrics server port")

	// 2. Filter out any -test.* args before parsing
	var appArgs []string
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	if err := fs.Parse(appArgs); err != nil {
		return nil, err
	}

	cfg := &Config{
		RedisURL:    redisURL,
		PublicURL:   getEnvOrDefault("PUBLIC_URL", "http://localhost:8080"),
		HTTPPort:    httpPort,
		MetricsPort: metricsPort,
		Gecko: Gecko{
			BaseURL: getEnvOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
			APIKey:  os.Getenv("COINGECKO_API_KEY"),
			Timeout: getDurationEnvOrDefault("COINGECKO_TIMEOUT", 10*time.Second),
		},
		// 553s matches the CoinGecko free-tier budget for one batched call
		SyncInterval: getDurationEnvOrDefault("SYNC_INTERVAL", 553*time.Second),
		CacheTTL:     getDurationEnvOrDefault("COIN_CACHE_TTL", 15*time.Minute),
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvIntOrDefault("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnvOrDefault("SMTP_FROM", "no-reply@coinapi.local"),
		},
	}

	// Check for PORT env var (overrides flag/default if set)
	if portEnv := os.Getenv("PORT"); portEnv != "" {
		if portVal, err := strconv.Atoi(portEnv); err == nil {
			cfg.HTTPPort = portVal
		} else {
			return nil, fmt.Errorf("invalid PORT env var: %v", err)
		}
	}

	// Tracked coin universe; read-only after Load
	if env := os.Getenv("TRACKED_COINS"); env != "" {
		cfg.TrackedCoins = splitAndTrim(env, ",")
	} else {
		cfg.TrackedCoins = append([]string(nil), DefaultTrackedCoins...)
	}

	// Validate required fields
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("missing required config: REDIS_URL or -redis")
	}
	if len(cfg.TrackedCoins) == 0 {
		return nil, fmt.Errorf("no tracked coins configured")
	}
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}

	return cfg, nil
}

// splitAndTrim splits s on sep, trims spaces, and drops empty entries.
func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, p := range strings.Split(s, sep) {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
