package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/crewguard/internal/core/config"
	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/core/retry"
	"github.com/vietddude/crewguard/internal/health"
	"github.com/vietddude/crewguard/internal/infra/budget"
	"github.com/vietddude/crewguard/internal/infra/llm"
	redisclient "github.com/vietddude/crewguard/internal/infra/redis"
	"github.com/vietddude/crewguard/internal/infra/storage"
	"github.com/vietddude/crewguard/internal/infra/storage/memory"
	"github.com/vietddude/crewguard/internal/infra/storage/postgres"
	"github.com/vietddude/crewguard/internal/metrics"
	"github.com/vietddude/crewguard/internal/pipeline"
)

// counterScope names the shared failure counter in Redis.
const counterScope = "llm"

// App wires the retry controllers, provider, storage and pipeline.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	provider     llm.Provider
	agent        *retry.Controller
	crew         *retry.Controller
	counter      retry.FailureCounter
	repo         storage.RunRepository
	runner       *pipeline.Runner
	healthServer *health.Server

	redisClient *redisclient.Client
	db          *postgres.DB
}

// Option overrides a component, mostly for tests.
type Option func(*options)

type options struct {
	provider llm.Provider
	sleeper  retry.Sleeper
	output   string
}

// WithProvider replaces the configured provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithSleeper replaces the progress-logging sleeper.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithOutput overrides pipeline.output.
func WithOutput(path string) Option {
	return func(o *options) { o.output = path }
}

// New builds the application from cfg.
func New(cfg *config.AppConfig, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg: cfg,
		log: slog.Default().With("component", "app"),
	}

	// 1. Failure counter
	switch cfg.State.Backend {
	case "redis":
		client, err := redisclient.NewClient(cfg.State.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		a.counter = redisclient.NewFailureCounter(client, cfg.State.Redis, counterScope)
		a.log.Info("Using Redis failure counter")
	default:
		a.counter = retry.NewMemoryCounter()
	}

	// 2. Run history
	if cfg.Database.URL != "" {
		ctx := context.Background()
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			a.closeClients()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			a.db = db
			a.closeClients()
			return nil, err
		}
		a.db = db
		a.repo = postgres.NewRunRepo(db)
		a.log.Info("Using PostgreSQL run history")
	} else {
		a.repo = memory.NewRunRepo()
	}

	// 3. Controllers
	sleeper := o.sleeper
	if sleeper == nil {
		sleeper = progressSleeper(cfg.Retry.ProgressInterval)
	}
	observer := retry.Observers(retry.LogObserver(slog.Default()), metrics.Observer())

	a.agent = retry.NewController(
		retry.WithSleeper(sleeper),
		retry.WithObserver(observer),
		retry.WithFailureCounter(a.counter),
		retry.WithOtherPolicy(cfg.Retry.AgentOther),
	)
	a.crew = retry.NewController(
		retry.WithClassifier(pipeline.CrewClassifier()),
		retry.WithSleeper(sleeper),
		retry.WithObserver(observer),
		retry.WithFailureCounter(a.counter),
		retry.WithOtherPolicy(cfg.Retry.Other),
		retry.WithAdaptiveDelay(cfg.Retry.Adaptive),
	)

	// 4. Provider
	base := o.provider
	if base == nil {
		var err error
		if base, err = newProvider(cfg.LLM); err != nil {
			a.closeClients()
			return nil, err
		}
	}
	a.provider = llm.NewResilientProvider(
		base,
		a.agent,
		cfg.Retry.Agent,
		llm.Settings{Model: cfg.LLM.Model, Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens},
		llm.WithBudget(budget.NewTracker(cfg.LLM.Budget)),
		llm.WithFallback(llm.Settings{Model: cfg.LLM.FallbackModel, Temperature: 0.5, MaxTokens: 1024}),
		llm.WithQuotaPolicy(cfg.Retry.Quota),
		llm.WithThrottleSleeper(sleeper),
	)

	// 5. Pipeline
	output := cfg.Pipeline.Output
	if o.output != "" {
		output = o.output
	}
	a.runner = pipeline.NewRunner(pipeline.Config{
		Steps:      cfg.Pipeline.Steps,
		Policy:     cfg.Retry.Crew,
		StepDelay:  cfg.Retry.StepDelay,
		OutputPath: output,
	}, a.provider, a.crew, a.repo)

	// 6. Health server
	if cfg.Server.Port > 0 {
		a.healthServer = health.NewServer(a.crew, cfg.Server.Port)
	}

	return a, nil
}

func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "scripted":
		return llm.NewScriptedProvider(), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, llm.ErrNoAPIKey
		}
		return llm.NewGeminiProvider(cfg.Endpoint, cfg.APIKey, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// progressSleeper logs wait progress every interval.
func progressSleeper(interval time.Duration) retry.Sleeper {
	return retry.TickingSleeper{
		Interval: interval,
		OnTick: func(elapsed, total time.Duration) {
			slog.Debug("Waiting",
				"elapsed", elapsed.Round(time.Second),
				"remaining", (total - elapsed).Round(time.Second),
				"progress", fmt.Sprintf("%.0f%%", 100*elapsed.Seconds()/total.Seconds()),
			)
		},
	}
}

// Start launches the health server when configured.
func (a *App) Start(ctx context.Context) error {
	if a.healthServer == nil {
		return nil
	}
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	a.log.Info("Health server started", "port", a.cfg.Server.Port)
	return nil
}

// Run executes one pipeline run.
func (a *App) Run(ctx context.Context, instructions string) (*domain.Run, error) {
	return a.runner.Run(ctx, instructions)
}

// Train executes a batch of runs with the same instructions.
func (a *App) Train(ctx context.Context, cfg pipeline.TrainConfig) (*pipeline.TrainReport, error) {
	return a.runner.Train(ctx, cfg)
}

// Controller returns the crew-level controller.
func (a *App) Controller() *retry.Controller {
	return a.crew
}

// ResetFailures clears the consecutive failure count.
func (a *App) ResetFailures(ctx context.Context) error {
	return a.counter.Reset(ctx)
}

// Runs returns the run history.
func (a *App) Runs() storage.RunRepository {
	return a.repo
}

// Stop shuts down the health server and closes connections.
func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.healthServer != nil {
		err = a.healthServer.Stop(ctx)
	}
	a.closeClients()
	return err
}

func (a *App) closeClients() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
