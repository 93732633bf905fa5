package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	PostgresDSN    string // empty -> in-memory store
	RedisAddr      string
	KafkaBrokers   []string
	ServiceName    string
	Env            string
	JWTSecret      string
	RequestTimeout time.Duration

	// stockwatch
	StockwatchGroup   string
	StockwatchWorkers int
	LowStockDefault   int
}

func Load() Config {
	return Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		RedisAddr:         getenv("REDIS_ADDR", "redis:6379"),
		KafkaBrokers:      splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		ServiceName:       getenv("SERVICE_NAME", "order-api"),
		Env:               getenv("ENV", "dev"),
		JWTSecret:         getenv("JWT_SECRET", "dev-secret-change-me"),
		RequestTimeout:    getduration("REQUEST_TIMEOUT", 5*time.Second),
		StockwatchGroup:   getenv("STOCKWATCH_GROUP", "stockwatch-svc"),
		StockwatchWorkers: getint("STOCKWATCH_WORKERS", 8),
		LowStockDefault:   getint("LOW_STOCK_DEFAULT", 5),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	i, err := strconv.Atoi(os.Getenv(k))
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func getduration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
