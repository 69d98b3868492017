package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/threadkeep/threadkeep/internal/ai"
	"github.com/threadkeep/threadkeep/internal/chat"
	"github.com/threadkeep/threadkeep/internal/config"
	"github.com/threadkeep/threadkeep/internal/db"
	"github.com/threadkeep/threadkeep/internal/httpapi"
	"github.com/threadkeep/threadkeep/internal/httpapi/handlers"
	"github.com/threadkeep/threadkeep/internal/store/rabbitmq"
	"github.com/threadkeep/threadkeep/internal/store/redisstore"
)

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model, cfg.OllamaKeepAlive), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL,
			cfg.OpenRouterAPIKey,
			model,
			cfg.OpenRouterSiteURL,
			cfg.OpenRouterAppName,
		), nil
	})
	return reg
}

func openStore(cfg config.Config) *chat.Store {
	dsn := cfg.DBDSN
	if cfg.DBDriver == "" || cfg.DBDriver == "sqlite" {
		dsn = cfg.DBPath
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("creating data directory failed")
			}
		}
	}

	gdb, err := db.Connect(cfg.DBDriver, dsn)
	if err != nil {
		// Persistence is auxiliary: the chat works, nothing is saved.
		log.Warn().Err(err).Msg("database unavailable, chat persistence disabled")
		gdb = nil
	}

	store := chat.NewStore(gdb)
	store.Initialize(context.Background())
	return store
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	store := openStore(cfg)
	registry := newRegistry(cfg)
	aggregator := chat.NewAggregator(store, registry, cfg.AIProvider)

	var jobs *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		var err error
		jobs, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn().Err(err).Msg("job queue unavailable, async turns disabled")
			jobs = nil
		} else {
			defer jobs.Close()
		}
	}

	h := &handlers.Handler{
		Store:      store,
		Aggregator: aggregator,
		Registry:   registry,
		Provider:   cfg.AIProvider,
		Models:     redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ModelCacheTTL),
		Jobs:       jobs,
	}

	r := httpapi.NewRouter(h)
	log.Info().Str("addr", cfg.HTTPAddr).Str("provider", cfg.AIProvider).Msg("server listening")
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
