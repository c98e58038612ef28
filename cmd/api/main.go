package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"prism/internal/adapter/repo"
	"prism/internal/admission"
	"prism/internal/domain"
	"prism/internal/http/handlers"
	httpapi "prism/internal/http/httpapi"
	"prism/internal/infra"
	"prism/internal/input"
	"prism/internal/observability"
	"prism/internal/orchestrator"
	"prism/internal/prompt"
	"prism/internal/providers/genai"
	"prism/internal/providers/interpreter"
	"prism/internal/providers/video"
	"prism/internal/storage"
	"prism/internal/templates"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// Without a database everything lives in process memory, so nothing
	// survives a restart and the recovery sweep has nothing to find.
	var (
		jobs         domain.JobRepository
		counterStore admission.CounterStore
		durable      bool
	)
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()

		runner := infra.NewSQLRunner(dbpool, logger)
		if err := infra.Migrate(ctx, runner); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		jobs = repo.NewJobRepository(runner)
		counterStore = admission.NewPostgresStore(runner)
		durable = true
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory job and admission stores")
		jobs = repo.NewMemoryJobRepository()
		counterStore = admission.NewMemoryStore()
	}

	controller := admission.NewController(counterStore, admission.Options{
		Limit:            cfg.RateLimitPerWindow,
		Window:           cfg.RateLimitWindow,
		MaxConcurrent:    cfg.MaxConcurrentJobs,
		ConcurrencyRetry: cfg.ConcurrencyRetry,
		Allowlist:        cfg.AdmissionAllowlist,
		Logger:           logger,
		Metrics:          metrics,
	})

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	catalog, err := templates.Builtin()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load template catalog")
	}

	var (
		interp     orchestrator.Interpreter
		renderer   video.Renderer
		downloader storage.Downloader
	)
	if cfg.MockMode {
		logger.Info().Msg("mock mode: fixed interpreter and simulated renderer")
		interp = interpreter.NewFixed()
		renderer = video.NewSimulated(video.SimulatedOptions{PendingPolls: 1})
		downloader = storage.NewFixtureDownloader(store)
	} else {
		interp = newInterpreter(cfg, &logger)
		wan, err := video.NewWan(video.Options{
			APIKey:  cfg.DashScopeAPIKey,
			BaseURL: cfg.DashScopeBaseURL,
			Model:   cfg.WanModel,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure video renderer")
		}
		renderer = wan
		downloader = storage.NewHTTPDownloader(store, nil, cfg.SubmitMaxRetries, logger)
	}

	engine, err := orchestrator.New(orchestrator.Deps{
		Repo:        jobs,
		Admission:   controller,
		Input:       input.NewProcessor(),
		Interpreter: interp,
		Router:      templates.NewRouter(catalog),
		Compiler:    prompt.NewCompiler(true),
		Renderer:    renderer,
		Downloader:  downloader,
		Store:       store,
	}, orchestrator.Options{
		PollInterval:     cfg.RenderPollInterval,
		ShotTimeout:      cfg.ShotTimeout,
		JobTimeout:       cfg.JobTimeout,
		MaxParallelShots: cfg.MaxParallelShots,
		SubmitMaxRetries: cfg.SubmitMaxRetries,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	if durable {
		// Jobs older than the job timeout cannot have a live workflow on any
		// instance. Younger ones are left to cmd/worker.
		n, err := engine.Recover(ctx, cfg.JobTimeout)
		if err != nil {
			logger.Error().Err(err).Msg("recovery sweep incomplete")
		}
		if n > 0 {
			logger.Warn().Int("jobs", n).Msg("failed jobs interrupted by restart")
		}
	}

	app := handlers.NewApp(engine, logger, metrics)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		EdgeRate:       cfg.EdgeRatePerSecond,
		EdgeBurst:      cfg.EdgeBurst,
		DefaultLocale:  "en-US",
		VideoDir:       filepath.Join(store.BasePath(), "videos"),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("workflows cancelled before completion")
	}
	logger.Info().Msg("server stopped")
}

// newInterpreter prefers Gemini and falls back to the keyword interpreter
// when no key is configured.
func newInterpreter(cfg *infra.Config, logger *infra.Logger) orchestrator.Interpreter {
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY not set, using keyword interpreter")
		return interpreter.NewFixed()
	}
	client, err := genai.NewClient(genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		Model:       cfg.GeminiModel,
		Temperature: 0.4,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}
	return interpreter.NewGemini(client)
}
