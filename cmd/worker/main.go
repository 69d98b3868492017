package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/threadkeep/threadkeep/internal/ai"
	"github.com/threadkeep/threadkeep/internal/chat"
	"github.com/threadkeep/threadkeep/internal/config"
	"github.com/threadkeep/threadkeep/internal/db"
	"github.com/threadkeep/threadkeep/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	dsn := cfg.DBDSN
	if cfg.DBDriver == "" || cfg.DBDriver == "sqlite" {
		dsn = cfg.DBPath
	}
	gdb, err := db.Connect(cfg.DBDriver, dsn)
	if err != nil {
		// Unlike the server, the worker exists only to write results.
		log.Fatal().Err(err).Msg("database unavailable")
	}
	store := chat.NewStore(gdb)
	store.Initialize(context.Background())
	if store.Degraded() {
		log.Fatal().Msg("store degraded, worker cannot run")
	}

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

	if cfg.RabbitURL == "" {
		log.Fatal().Msg("RABBIT_URL is required for the worker")
	}
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial failed")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel failed")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatal().Err(err).Msg("queue declare failed")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos failed")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Warn().Int("worker", workerID).Err(err).Msg("bad queue message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, store, reg, cfg.AIProvider, m.JobID); err != nil {
					log.Warn().Int("worker", workerID).Str("job_id", m.JobID).
						Dur("cost", time.Since(start)).Err(err).Msg("job failed")
					_ = d.Nack(false, false)
					continue
				}

				log.Info().Int("worker", workerID).Str("job_id", m.JobID).
					Dur("cost", time.Since(start)).Msg("job done")
				if err := d.Ack(false); err != nil {
					log.Warn().Int("worker", workerID).Str("job_id", m.JobID).Err(err).Msg("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob runs one queued turn: load the chat's stored history,
// append the prompt, run a non-streamed completion, and append the
// assistant reply. Every failure marks the job failed with its reason.
func handleJob(ctx context.Context, store *chat.Store, reg *ai.Registry, providerName, jobID string) error {
	_ = store.MarkJobRunning(ctx, jobID)

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		_ = store.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	chatRow, err := store.GetChat(ctx, job.ChatID)
	if err != nil {
		return fail(err)
	}
	model := job.Model
	if model == "" {
		model = chatRow.Model
	}

	history, err := store.GetMessages(ctx, job.ChatID)
	if err != nil {
		return fail(err)
	}

	if _, err := store.AppendMessage(ctx, job.ChatID, model, ai.RoleUser, job.Prompt); err != nil {
		return fail(err)
	}
	history = append(history, ai.Message{Role: ai.RoleUser, Content: job.Prompt})

	provider, err := reg.Get(ctx, providerName, model)
	if err != nil {
		return fail(err)
	}

	reply, err := provider.Chat(ctx, history)
	if err != nil {
		return fail(err)
	}

	msgID, err := store.AppendMessage(ctx, job.ChatID, model, ai.RoleAssistant, reply)
	if err != nil {
		return fail(err)
	}

	return store.MarkJobSucceeded(ctx, jobID, msgID)
}
