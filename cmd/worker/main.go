package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"server/internal/adapter/repo"
	"server/internal/enhance"
	"server/internal/infra"
	"server/internal/providers/openai"
	"server/internal/providers/replicate"
	"server/internal/providers/runware"
	"server/internal/queue"
	"server/internal/storage"
	"server/internal/worker"
)

const jobPollInterval = 2 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	jobs := repo.NewJobRepository(pool)
	photos := repo.NewPhotoRepository(pool)
	q := queue.NewPostgresQueue(pool, cfg.QueueLease, cfg.QueueMaxAttempts)

	registry := initRegistry(cfg, logger)
	handler := worker.NewHandler(jobs, photos, store, registry, cfg.SignedURLTTL, logger)
	runner := worker.NewRunner(q, handler, jobs, photos, jobPollInterval, logger)

	sched := cron.New()
	if _, err := sched.AddFunc("@every 1m", func() { runner.FailExhausted(ctx) }); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to schedule reaper")
	}
	sched.Start()
	defer sched.Stop()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func initRegistry(cfg *infra.Config, logger infra.Logger) *enhance.Registry {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	registry := enhance.NewRegistry(enhance.RegistryOptions{
		Retry:       enhance.RetryConfig{Attempts: cfg.ProviderRetries},
		ProviderRPS: cfg.ProviderRPS,
		Logger:      logger,
	})

	registry.Register(enhance.ProviderOpenAI, openai.NewClient(openai.Options{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	}))
	registry.Register(enhance.ProviderReplicate, replicate.NewClient(replicate.Options{
		APIKey:      cfg.ReplicateAPIKey,
		BaseURL:     cfg.ReplicateBaseURL,
		HTTPClient:  httpClient,
		Logger:      &logger,
		PollTimeout: cfg.ProviderTimeout,
	}))
	registry.Register(enhance.ProviderRunware, runware.NewClient(runware.Options{
		APIKey:     cfg.RunwareAPIKey,
		BaseURL:    cfg.RunwareBaseURL,
		HTTPClient: httpClient,
		Logger:     &logger,
	}))

	return registry
}
