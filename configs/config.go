package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Publisher struct {
	BaseURL    string
	RatePerSec int
}

type Dispatch struct {
	BatchSize       int
	Workers         int
	Cron            string
	PublishTimeout  time.Duration
	RetryDelay      time.Duration
	MaxRetries      int
	IntervalMins    int
	StaleAfter      time.Duration
	ReaperBatch     int
	AssetStaleAfter time.Duration
}

type Stats struct {
	Horizon  time.Duration
	Timezone string
}

type Config struct {
	PostgresURI string
	RedisURI    string
	StoreDriver string
	ListenAddr  string
	R2          R2
	Publisher   Publisher
	Dispatch    Dispatch
	Stats       Stats
	SecretKey   string
	CookieName  string
	LogLevel    string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Publisher: Publisher{
			BaseURL:    getEnv("PUBLISHER_BASE_URL", "https://open.tiktokapis.com"),
			RatePerSec: getEnvInt("PUBLISHER_RATE_PER_SEC", 5),
		},
		Dispatch: Dispatch{
			BatchSize:       getEnvInt("DISPATCH_BATCH_SIZE", 5),
			Workers:         getEnvInt("DISPATCH_WORKERS", 1),
			Cron:            getEnv("DISPATCH_CRON", "@every 1m"),
			PublishTimeout:  getEnvDuration("DISPATCH_PUBLISH_TIMEOUT", 2*time.Minute),
			RetryDelay:      getEnvDuration("RETRY_DELAY", 5*time.Minute),
			MaxRetries:      getEnvInt("DEFAULT_MAX_RETRIES", 3),
			IntervalMins:    getEnvInt("DEFAULT_INTERVAL_MINUTES", 5),
			StaleAfter:      getEnvDuration("STALE_AFTER", 15*time.Minute),
			ReaperBatch:     getEnvInt("REAPER_BATCH_SIZE", 100),
			AssetStaleAfter: getEnvDuration("ASSET_STALE_AFTER", 30*time.Minute),
		},
		Stats: Stats{
			Horizon:  getEnvDuration("STATS_HORIZON", 24*time.Hour),
			Timezone: getEnv("STATS_TIMEZONE", "UTC"),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "crosspost_token"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}

// Location resolves the stats timezone, falling back to UTC.
func (s Stats) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		slog.Warn("unknown stats timezone, using UTC", "timezone", s.Timezone)
		return time.UTC
	}
	return loc
}
