package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string

	// DBDriver selects the dialect: "sqlite" (default) or "mysql".
	// Sqlite uses DBPath, mysql uses DBDSN.
	DBDriver string
	DBPath   string
	DBDSN    string

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaKeepAlive   string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// Model list cache. Disabled unless REDIS_ADDR is set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ModelCacheTTL time.Duration

	// Async turn jobs. Disabled unless RABBIT_URL is set.
	RabbitURL   string
	RabbitQueue string

	LogLevel string
}

func Load() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBDriver: getenv("DB_DRIVER", "sqlite"),
		DBPath:   getenv("DB_PATH", "data/threadkeep.db"),
		DBDSN: getenv("DB_DSN",
			"app:apppass@tcp(127.0.0.1:3306)/threadkeep?charset=utf8mb4&parseTime=true&loc=Local"),

		AIProvider:        getenv("AI_PROVIDER", "ollama"),
		OllamaBaseURL:     getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaKeepAlive:   getenv("OLLAMA_KEEP_ALIVE", "30m"),
		OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
		ModelCacheTTL: getenvDuration("MODEL_CACHE_TTL", 5*time.Minute),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getenv("RABBIT_QUEUE", "turn_jobs"),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
