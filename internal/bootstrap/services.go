package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/assesskit/reportgen/config"
	"github.com/assesskit/reportgen/internal/adapters/reaper"
	"github.com/assesskit/reportgen/internal/adapters/renderer"
	"github.com/assesskit/reportgen/internal/adapters/worker"
	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/data"
	"github.com/assesskit/reportgen/internal/notify/webhook"
	"github.com/assesskit/reportgen/internal/observability/statsd"
	"github.com/assesskit/reportgen/internal/pdf"
	"github.com/assesskit/reportgen/internal/service"
	"github.com/assesskit/reportgen/internal/storage"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs     *service.JobService
	Composer *service.ComposerService // nil unless the worker mode is enabled
	Delivery *service.DeliveryService // nil unless the worker mode is enabled
	Notifier *webhook.Notifier        // nil when webhook delivery is disabled

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	JobRepo         *data.JobRepo
	ProductRepo     *data.ProductRepo
	SessionRepo     *data.SessionRepo
	WorkflowRepo    *data.WorkflowRepo
	Interpretations core.InterpretationRepository
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.StatsdPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps ServiceDeps) (*serviceRepositories, error) {
	repos := &serviceRepositories{
		JobRepo:      data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
		ProductRepo:  data.NewProductRepo(deps.DB),
		SessionRepo:  data.NewSessionRepo(deps.DB),
		WorkflowRepo: data.NewWorkflowRepo(deps.DB),
	}

	source := data.NewInterpretationRepo(deps.DB)
	if deps.RedisClient != nil && deps.Config.Cache.Enabled {
		cached, err := data.NewCachedInterpretationRepo(data.CachedInterpretationRepoOptions{
			Source: source,
			Client: deps.RedisClient,
			TTL:    deps.Config.Cache.InterpretationTTL,
			Logger: deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build interpretation cache: %w", err)
		}
		repos.Interpretations = cached
	} else {
		repos.Interpretations = source
	}

	return repos, nil
}

// BuildServices constructs the service container for the enabled modes.
// Worker-only collaborators (renderer, merge engine, artifact store) are
// wired only when the worker mode is enabled.
func BuildServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("AppConfig is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database connection is required")
	}

	repos, err := buildRepositories(deps)
	if err != nil {
		return nil, err
	}

	observability := buildObservability(deps.Logger, deps.Config.Observability)

	container := &ServiceContainer{Observability: observability}

	container.Jobs, err = service.NewJobService(service.JobServiceOptions{
		Repo:         repos.JobRepo,
		Reaper:       repos.JobRepo,
		Workflow:     repos.WorkflowRepo,
		DefaultLease: deps.Config.Worker.JobLease,
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build job service: %w", err)
	}

	if deps.Config.Webhook.Enabled {
		container.Notifier = webhook.NewNotifier(webhook.NotifierOptions{
			Timeout: deps.Config.Webhook.Timeout,
			Logger:  deps.Logger,
		})
	}

	if !deps.Config.IsWorkerEnabled() {
		return container, nil
	}

	renderClient, err := renderer.NewClient(renderer.ClientOptions{
		BaseURL: deps.Config.Renderer.BaseURL,
		Timeout: deps.Config.Renderer.Timeout,
		Logger:  deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build renderer client: %w", err)
	}

	container.Composer, err = service.NewComposerService(service.ComposerServiceOptions{
		Products:        repos.ProductRepo,
		Sessions:        repos.SessionRepo,
		Interpretations: repos.Interpretations,
		Renderer:        renderClient,
		WorkDir:         deps.Config.Worker.WorkDir,
		OnSectionError:  service.SectionErrorPolicy(deps.Config.Worker.OnSectionError),
		Metrics:         observability.MetricsSink,
		Logger:          deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build composer service: %w", err)
	}

	store, err := storage.NewMinioStore(ctx, storage.MinioStoreOptions{
		Endpoint:   deps.Config.Storage.Endpoint,
		AccessKey:  deps.Config.Storage.AccessKey,
		SecretKey:  deps.Config.Storage.SecretKey,
		Bucket:     deps.Config.Storage.Bucket,
		UseSSL:     deps.Config.Storage.UseSSL,
		KeyPrefix:  deps.Config.Storage.KeyPrefix,
		LinkExpiry: deps.Config.Storage.LinkExpiry,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build artifact store: %w", err)
	}

	container.Delivery, err = service.NewDeliveryService(service.DeliveryServiceOptions{
		Store:  store,
		Merger: pdf.NewMerger(pdf.MergerOptions{Logger: deps.Logger}),
		Logger: deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build delivery service: %w", err)
	}

	return container, nil
}

// ServiceOrchestrationConfig groups everything needed to run the process.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	DB       *sql.DB
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeHTTP] {
		g.Go(func() error {
			return runHTTPServer(ctx, httpServerDeps{
				Config:   cfg.Config.HTTP,
				Services: cfg.Services,
				Logger:   logger,
			})
		})
	}

	if enabled[config.ServiceModeWorker] {
		runner, rerr := worker.NewRunner(worker.RunnerOptions{
			Jobs:         cfg.Services.Jobs,
			Composer:     cfg.Services.Composer,
			Delivery:     cfg.Services.Delivery,
			Notifier:     cfg.Services.Notifier,
			Logger:       logger,
			Metrics:      cfg.Services.Observability.MetricsSink,
			Concurrency:  cfg.Config.Worker.Concurrency,
			Lease:        cfg.Config.Worker.JobLease,
			JobTimeout:   cfg.Config.Worker.JobTimeout,
			PollInterval: cfg.Config.Worker.PollInterval,
		})
		if rerr != nil {
			return fmt.Errorf("build worker runner: %w", rerr)
		}
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	if enabled[config.ServiceModeReaper] {
		runner, rerr := reaper.NewRunner(reaper.RunnerOptions{
			DB:      cfg.DB,
			Config:  cfg.Config.Reaper,
			Logger:  logger,
			Metrics: cfg.Services.Observability.MetricsSink,
		})
		if rerr != nil {
			return fmt.Errorf("build reaper runner: %w", rerr)
		}
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("all services stopped")
	return nil
}
