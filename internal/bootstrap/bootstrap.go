package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/config"
	"github.com/kirillkom/receipt-reminders/internal/core/catalog"
	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/matching"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
	"github.com/kirillkom/receipt-reminders/internal/core/usecase"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/analysis/formrecognizer"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/catalogsource"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/keylock"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/queue/nats"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/receipt"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/resilience"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue      *nats.Queue
	ScanRepo   ports.ScanRepository
	Catalog    *catalog.Catalog
	Matcher    *matching.Matcher
	Reminders  *usecase.ReminderStore
	SubmitUC   *usecase.SubmitScanUseCase
	ProcessUC  *usecase.ProcessScanUseCase
	Dispatcher *usecase.ReminderDispatcher

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	storageLocation, ok := domain.ParseStorageLocation(cfg.MatchStorageLocation)
	if !ok {
		return nil, fmt.Errorf("unknown storage location %q", cfg.MatchStorageLocation)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.ResilienceRetryMaxAttempts,
		BreakerEnabled:   cfg.ResilienceBreakerEnabled,
	})

	cat, err := loadCatalog(ctx, cfg, db, executor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		ScanSubmitted: cfg.NATSScanSubject,
		ReminderDue:   cfg.NATSReminderSubject,
	}, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	scanRepo := postgres.NewScanRepository(db)
	notifications := postgres.NewNotificationRepository(db)
	locker, err := newNotificationLocker(cfg.ReminderLockBackend, notifications)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	matcher := matching.New(cat, matching.Options{
		Location: storageLocation,
		Fallback: time.Duration(cfg.MatchFallbackDays * float64(24*time.Hour)),
	})
	reminders := usecase.NewReminderStore(notifications, locker, usecase.ReminderConfig{
		Location:       loc,
		DeliveryHour:   cfg.ReminderDeliveryHour,
		DeliveryMinute: cfg.ReminderDeliveryMinute,
	})

	analysis := formrecognizer.NewWithOptions(cfg.AnalysisEndpoint, cfg.AnalysisAPIKey, formrecognizer.Options{
		Timeout:            time.Duration(cfg.AnalysisHTTPTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
	})
	orchestrator := usecase.NewScanOrchestrator(analysis, usecase.PollConfig{
		MaxAttempts:       cfg.PollMaxAttempts,
		Interval:          time.Duration(cfg.PollIntervalMillis) * time.Millisecond,
		PerAttemptTimeout: time.Duration(cfg.PollAttemptTimeoutSeconds) * time.Second,
		BackoffMultiplier: cfg.PollBackoffMultiplier,
		MaxInterval:       time.Duration(cfg.PollMaxIntervalMillis) * time.Millisecond,
	})

	submitUC := usecase.NewSubmitScanUseCase(scanRepo, storage, queue, receipt.NewInspector(cfg.ScanMaxPDFPages), int64(cfg.ScanMaxUploadBytes))
	processUC := usecase.NewProcessScanUseCase(scanRepo, storage, orchestrator, matcher, reminders, usecase.PipelineConfig{
		Location:        loc,
		SuggestionLimit: cfg.MatchSuggestionLimit,
	})
	dispatcher := usecase.NewReminderDispatcher(notifications, locker, queue)

	return &App{
		Config: cfg,

		Queue:      queue,
		ScanRepo:   scanRepo,
		Catalog:    cat,
		Matcher:    matcher,
		Reminders:  reminders,
		SubmitUC:   submitUC,
		ProcessUC:  processUC,
		Dispatcher: dispatcher,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func loadCatalog(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (*catalog.Catalog, error) {
	source, err := catalogSource(ctx, cfg, db, executor)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func catalogSource(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.CatalogSource, error) {
	switch cfg.CatalogSource {
	case "postgres":
		repo := postgres.NewReferenceItemRepository(db)
		if cfg.CatalogSeedPath != "" {
			if err := seedCatalog(ctx, repo, cfg.CatalogSeedPath, cfg.CatalogSheet); err != nil {
				return nil, err
			}
		}
		return catalogsource.NewResilient(repo, executor), nil
	case "yaml", "xlsx":
		return catalogsource.FromFile(cfg.CatalogPath, cfg.CatalogSheet)
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.CatalogSource)
	}
}

func seedCatalog(ctx context.Context, repo *postgres.ReferenceItemRepository, path, sheet string) error {
	file, err := catalogsource.FromFile(path, sheet)
	if err != nil {
		return err
	}
	items, err := file.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("read catalog seed: %w", err)
	}
	if err := repo.ReplaceAll(ctx, items); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	slog.Info("catalog_seeded", "path", path, "items", len(items))
	return nil
}

// newNotificationLocker picks how day sections are serialized. postgres runs
// each section in a transaction holding an advisory lock, shared by api and
// worker; local only serializes within one process.
func newNotificationLocker(backend string, notifications *postgres.NotificationRepository) (ports.NotificationLocker, error) {
	switch backend {
	case "postgres":
		return notifications, nil
	case "local":
		return keylock.NewCenterLocker(notifications), nil
	default:
		return nil, fmt.Errorf("unknown reminder lock backend %q", backend)
	}
}
