package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ganz677/wb/internal/catalog"
	"github.com/ganz677/wb/internal/config"
	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/infrastructure/llm"
	"github.com/ganz677/wb/internal/infrastructure/marketplace"
	"github.com/ganz677/wb/internal/infrastructure/scheduler"
	"github.com/ganz677/wb/internal/infrastructure/storage"
	"github.com/ganz677/wb/internal/infrastructure/telegram"
	"github.com/ganz677/wb/internal/logging"
	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/internal/ratelimit"
	"github.com/ganz677/wb/internal/scanner"
	"github.com/ganz677/wb/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	db     *sqlx.DB
	repo   ports.ItemRepository
	logger *slog.Logger

	pipeline  *usecase.Pipeline
	requeue   *usecase.Requeue
	scheduler *usecase.Scheduler
	cron      *scheduler.CronScheduler
}

// New opens the database and builds every component. Call Close when done.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	dialect := storage.Dialect(cfg.Database.Driver)
	db, err := storage.Open(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo := storage.NewItemRepository(db, dialect)

	market := marketplace.NewClient(marketplace.Options{
		BaseURL:        cfg.Marketplace.BaseURL,
		Token:          cfg.Marketplace.Token,
		Timeout:        cfg.Marketplace.Timeout,
		MaxAttempts:    cfg.Marketplace.MaxAttempts,
		InitialBackoff: cfg.Marketplace.InitialBackoff,
		MaxBackoff:     cfg.Marketplace.MaxBackoff,
		Limiter:        ratelimit.New(cfg.Marketplace.RPS),
		Logger:         baseLogger.With("component", "marketplace"),
	})

	registry := scanner.NewRegistry(
		scanner.NewLiveScanner(market, repo, baseLogger.With("component", "scanner.live")),
		scanner.NewArchiveScanner(market, repo, baseLogger.With("component", "scanner.archive")),
	)
	kinds, err := parseKinds(cfg.Ingest.Kinds)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ingestion := usecase.NewIngestion(registry, usecase.IngestOptions{
		Strategies:    cfg.Ingest.Strategies,
		Kinds:         kinds,
		PageSize:      cfg.Ingest.PageSize,
		ArchiveOrder:  ports.ArchiveOrder(cfg.Ingest.ArchiveOrder),
		ArchiveWindow: cfg.Ingest.ArchiveWindow,
	}, baseLogger.With("component", "ingest"))

	generation := usecase.NewGeneration(usecase.GenerationDeps{
		Repository: repo,
		Catalog:    lazyCatalog(cfg.Catalog.Path),
		Brand:      cfg.Generator.Brand,
		Similar:    cfg.Catalog.Similar,
		Logger:     baseLogger.With("component", "generate"),
	})
	rotation := usecase.NewRotation(generation, generatorFactory(cfg.Generator, baseLogger.With("component", "llm")), usecase.RotationOptions{
		Policy:          cfg.Rotation.Policy,
		Credentials:     len(cfg.Generator.Tokens),
		MaxSleep:        cfg.Rotation.MaxSleep,
		NoProgressLimit: cfg.Rotation.NoProgressLimit,
	}, baseLogger.With("component", "rotation"))

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Ingestion: ingestion,
		Rotation:  rotation,
		Delivery:  usecase.NewDelivery(repo, market, baseLogger.With("component", "deliver")),
		Notifier:  notifier,
		Logger:    baseLogger.With("component", "pipeline"),
	})

	specs := make([]string, 0, len(cfg.Scheduler.Slots))
	credentials := make([]int, 0, len(cfg.Scheduler.Slots))
	for _, slot := range cfg.Scheduler.Slots {
		specs = append(specs, slot.Cron)
		credentials = append(credentials, slot.CredentialIndex)
	}
	cron := scheduler.NewCronScheduler(specs, cfg.Scheduler.Location(), baseLogger.With("component", "cron"))

	return &Application{
		cfg:       cfg,
		db:        db,
		repo:      repo,
		logger:    baseLogger,
		pipeline:  pipeline,
		requeue:   usecase.NewRequeue(repo),
		scheduler: usecase.NewScheduler(cron, pipeline, credentials, baseLogger.With("component", "scheduler")),
		cron:      cron,
	}, nil
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Pipeline exposes the stage operations for one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline { return a.pipeline }

// Requeue moves items back into the pipeline.
func (a *Application) Requeue(ctx context.Context, mode usecase.RequeueMode, kinds []string) (int64, error) {
	parsed, err := parseKinds(kinds)
	if err != nil {
		return 0, err
	}
	return a.requeue.Run(ctx, mode, parsed)
}

// Status counts stored items per kind and status.
func (a *Application) Status(ctx context.Context) (map[domain.Kind]map[domain.Status]int, error) {
	out := make(map[domain.Kind]map[domain.Status]int, len(domain.Kinds()))
	for _, kind := range domain.Kinds() {
		counts, err := a.repo.CountByStatus(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		out[kind] = counts
	}
	return out, nil
}

// Run performs one full pipeline execution starting from credential.
func (a *Application) Run(ctx context.Context, credential int) (usecase.RunReport, error) {
	return a.pipeline.Run(ctx, credential)
}

// Serve starts the cron slots and blocks until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if len(a.cfg.Scheduler.Slots) == 0 {
		return &domain.ConfigurationError{Field: "scheduler.slots", Reason: "no slots configured"}
	}
	if err := a.cron.Validate(); err != nil {
		return &domain.ConfigurationError{Field: "scheduler.slots", Reason: err.Error()}
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "slots", len(a.cfg.Scheduler.Slots), "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

func parseKinds(values []string) ([]domain.Kind, error) {
	if len(values) == 0 {
		return domain.Kinds(), nil
	}
	kinds := make([]domain.Kind, 0, len(values))
	for _, v := range values {
		kind, err := domain.ParseKind(v)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// lazyCatalog loads the product table on first use and caches the outcome.
func lazyCatalog(path string) usecase.CatalogSource {
	var (
		once  sync.Once
		index *catalog.Index
		err   error
	)
	return func() (ports.Catalog, error) {
		once.Do(func() {
			index, err = catalog.Load(path)
		})
		if err != nil {
			return nil, err
		}
		return index, nil
	}
}

func generatorFactory(cfg config.GeneratorConfig, logger *slog.Logger) usecase.GeneratorFactory {
	return func(ctx context.Context, credential int) (ports.AnswerGenerator, error) {
		apiKey, err := cfg.Credential(credential)
		if err != nil {
			return nil, err
		}
		switch cfg.Provider {
		case "openai":
			return llm.NewChatGPTClient(cfg, apiKey, logger), nil
		default:
			gen, err := llm.NewGeminiGenerator(ctx, cfg, apiKey, logger)
			if err != nil {
				return nil, err
			}
			return gen, nil
		}
	}
}
