package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/talkingphoto/pipeline/config"
	"github.com/talkingphoto/pipeline/internal/adapters/worker"
	"github.com/talkingphoto/pipeline/internal/data"
	httpx "github.com/talkingphoto/pipeline/internal/http"
	"github.com/talkingphoto/pipeline/internal/observability/notify"
	"github.com/talkingphoto/pipeline/internal/observability/notify/slack"
	"github.com/talkingphoto/pipeline/internal/observability/statsd"
	"github.com/talkingphoto/pipeline/internal/providers"
	"github.com/talkingphoto/pipeline/internal/service"
)

// ServiceDeps carries shared infrastructure into the service graph.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// App is the fully wired application: an HTTP API, a generation worker pool,
// and the progress delivery loop.
type App struct {
	Config       *config.AppConfig
	Orchestrator *service.Orchestrator
	Worker       *worker.Runner
	Progress     *service.ProgressEmitter
	HTTPServer   *http.Server
	Metrics      *statsd.Client
	Logger       *slog.Logger
}

// NewApp wires repositories, providers, and services from configuration.
func NewApp(deps *ServiceDeps) (*App, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := data.SystemClock{}
	repoCfg := data.RepoConfig{Logger: logger, TimeProvider: clock}

	jobs := data.NewJobRepo(deps.DB, repoCfg)
	ledger := data.NewCreditLedgerRepo(deps.DB, repoCfg)
	cache := data.NewRedisCacheRepo(deps.RedisClient)

	artifacts, err := data.NewFSArtifactStore(data.FSArtifactStoreConfig{
		BaseDir:       cfg.Artifacts.Dir,
		PublicBaseURL: cfg.Artifacts.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	media := data.NewLocalMediaProcessor(cfg.Media.WorkDir, logger)

	metrics, err := newMetricsClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	var sink statsd.Sink
	if metrics != nil {
		sink = metrics
	}

	eventSink, err := newEventSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier := notify.NewUserNotifier(eventSink, clock)

	registry, err := newProviderRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	router, err := service.NewRouter(service.RouterOptions{
		Registry:  registry,
		Cache:     cache,
		Artifacts: artifacts,
		Clock:     clock,
		Config: service.RouterConfig{
			PollInterval: cfg.Workflow.RenderPollInterval,
			PollWindow:   cfg.Workflow.RenderPollWindow,
			ResultTTL:    cfg.Workflow.ResultCacheTTL,
			HealthTTL:    cfg.Workflow.ProviderDownTTL,
		},
		Metrics: sink,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	recovery, err := service.NewRecoveryEngine(service.RecoveryEngineOptions{
		Ledger:    ledger,
		Notifier:  notifier,
		Fallbacks: router,
		Clock:     clock,
		Metrics:   sink,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("recovery engine: %w", err)
	}

	tracker := service.NewPerformanceTracker(clock)
	optimizer, err := service.NewOptimizer(service.OptimizerOptions{
		Registry: registry,
		Tracker:  tracker,
		Cache:    cache,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}

	progress := service.NewProgressEmitter(service.ProgressEmitterOptions{
		Logger: logger,
	})

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Jobs:      jobs,
		Ledger:    ledger,
		Router:    router,
		Recovery:  recovery,
		Optimizer: optimizer,
		Media:     media,
		Notifier:  notifier,
		Tracker:   tracker,
		Progress:  progress,
		Clock:     clock,
		Config: service.OrchestratorConfig{
			TargetSeconds:      cfg.Workflow.TargetSeconds,
			CancelPollInterval: cfg.Workflow.CancelPollInterval,
		},
		Metrics: sink,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	runner, err := worker.NewRunner(worker.RunnerOptions{
		Jobs:         jobs,
		Orchestrator: orchestrator,
		Clock:        clock,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Orchestrator: orchestrator,
		Jobs:         jobs,
		Ledger:       ledger,
		Cache:        cache,
		ArtifactDir:  cfg.Artifacts.Dir,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &App{
		Config:       cfg,
		Orchestrator: orchestrator,
		Worker:       runner,
		Progress:     progress,
		HTTPServer:   server,
		Metrics:      metrics,
		Logger:       logger,
	}, nil
}

// Run starts the HTTP server, the worker pool, and the progress delivery
// loop, and blocks until a shutdown signal or a fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Progress.Run(ctx)
		return nil
	})

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "http server listening", "addr", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.HTTPServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := a.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker pool: %w", err)
		}
		return nil
	})

	err := g.Wait()

	if a.Metrics != nil {
		if closeErr := a.Metrics.Close(); closeErr != nil {
			a.Logger.Error("close metrics client failed", "error", closeErr)
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newMetricsClient(cfg *config.AppConfig, logger *slog.Logger) (*statsd.Client, error) {
	if !cfg.Observability.Metrics.IsEnabled() {
		return nil, nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  "talkingphoto",
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statsd client: %w", err)
	}
	return client, nil
}

//nolint:ireturn // sink selection depends on configuration.
func newEventSink(cfg *config.AppConfig, logger *slog.Logger) (notify.Sink, error) {
	sinks := notify.Fanout{notify.NewLogSink(logger)}

	if cfg.Observability.Notifications.Slack.Enabled {
		slackSink, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Observability.Notifications.Slack.WebhookURL,
			Channel:    cfg.Observability.Notifications.Slack.Channel,
			Username:   cfg.Observability.Notifications.Slack.Username,
			Timeout:    cfg.Observability.Notifications.Timeout,
			RetryLimit: cfg.Observability.Notifications.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("slack client: %w", err)
		}
		sinks = append(sinks, slackSink)
	}

	return sinks, nil
}

func newProviderRegistry(cfg *config.AppConfig, logger *slog.Logger) (*providers.Registry, error) {
	var list []providers.Provider

	if cfg.Providers.Veo3.Enabled {
		p, err := providers.NewVeo3(vendorClientConfig(cfg.Providers.Veo3), logger)
		if err != nil {
			return nil, fmt.Errorf("veo3 provider: %w", err)
		}
		list = append(list, p)
	}
	if cfg.Providers.Runway.Enabled {
		p, err := providers.NewRunway(vendorClientConfig(cfg.Providers.Runway), logger)
		if err != nil {
			return nil, fmt.Errorf("runway provider: %w", err)
		}
		list = append(list, p)
	}
	if cfg.Providers.NanoBanana.Enabled {
		p, err := providers.NewNanoBanana(vendorClientConfig(cfg.Providers.NanoBanana), logger)
		if err != nil {
			return nil, fmt.Errorf("nanobanana provider: %w", err)
		}
		list = append(list, p)
	}
	if cfg.Providers.StubEnabled {
		list = append(list, providers.NewStub())
	}

	registry, err := providers.NewRegistry(list...)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}
	return registry, nil
}

func vendorClientConfig(v config.VendorConfig) providers.ClientConfig {
	return providers.ClientConfig{
		BaseURL:    v.BaseURL,
		APIKey:     v.APIKey,
		HTTPClient: &http.Client{Timeout: v.Timeout},
	}
}
