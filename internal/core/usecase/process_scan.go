package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

// ScanObserver records pipeline outcomes. Optional.
type ScanObserver interface {
	ObserveScan(state domain.ScanState, attempts int, duration time.Duration)
	ObserveMatch(matched bool)
}

type PipelineConfig struct {
	// Location anchors purchase dates before due intervals are added.
	Location        *time.Location
	SuggestionLimit int
}

type ProcessScanUseCase struct {
	repo         ports.ScanRepository
	storage      ports.ObjectStorage
	orchestrator *ScanOrchestrator
	matcher      ports.ItemMatcher
	reminders    ports.ReminderScheduler
	cfg          PipelineConfig
	observer     ScanObserver
}

func NewProcessScanUseCase(
	repo ports.ScanRepository,
	storage ports.ObjectStorage,
	orchestrator *ScanOrchestrator,
	matcher ports.ItemMatcher,
	reminders ports.ReminderScheduler,
	cfg PipelineConfig,
) *ProcessScanUseCase {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &ProcessScanUseCase{
		repo:         repo,
		storage:      storage,
		orchestrator: orchestrator,
		matcher:      matcher,
		reminders:    reminders,
		cfg:          cfg,
	}
}

func (uc *ProcessScanUseCase) WithObserver(observer ScanObserver) *ProcessScanUseCase {
	uc.observer = observer
	return uc
}

func (uc *ProcessScanUseCase) ProcessByID(ctx context.Context, scanID string) error {
	start := time.Now()

	job, err := uc.repo.GetByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("fetch scan by id: %w", err)
	}
	if job.State.Terminal() {
		slog.Info("scan_already_finished", "scan_id", job.ID, "state", string(job.State))
		return nil
	}
	if job.State != domain.ScanCreated {
		// An interrupted run cannot be resumed: the upload is not safe to repeat.
		err := domain.WrapError(domain.ErrInvalidInput, "process scan", fmt.Errorf("scan interrupted in state %s; resubmit", job.State))
		job.State = domain.ScanFailed
		job.Error = err.Error()
		uc.persistState(ctx, job)
		return err
	}

	if err := uc.loadImage(ctx, job); err != nil {
		job.State = domain.ScanFailed
		job.Error = err.Error()
		uc.persistState(ctx, job)
		uc.observeScan(job, start)
		return err
	}

	result, err := uc.orchestrator.WithTransitionHook(uc.persistState).Run(ctx, job)
	job.Image = nil
	if err != nil {
		uc.observeScan(job, start)
		return fmt.Errorf("run analysis: %w", err)
	}
	if err := ctx.Err(); err != nil {
		uc.observeScan(job, start)
		return fmt.Errorf("scan cancelled before scheduling: %w", err)
	}

	// The scan has succeeded; the batch is scheduled whole even if ctx is
	// cancelled midway, so a receipt never ends up half scheduled.
	items, requests := uc.plan(job, result)
	bulk := uc.reminders.BulkSchedule(context.WithoutCancel(ctx), requests)
	applyFailures(items, bulk.Failures)

	job.Items = items
	if err := uc.repo.SaveItems(context.WithoutCancel(ctx), job); err != nil {
		uc.observeScan(job, start)
		return fmt.Errorf("save scanned items: %w", err)
	}

	uc.observeScan(job, start)
	slog.Info("scan_processed",
		"scan_id", job.ID,
		"items", len(items),
		"scheduled", bulk.Scheduled,
		"failed", len(bulk.Failures),
		"attempts", job.Attempt,
	)
	return nil
}

func (uc *ProcessScanUseCase) loadImage(ctx context.Context, job *domain.ScanJob) error {
	rc, err := uc.storage.Open(ctx, job.StorageKey)
	if err != nil {
		return fmt.Errorf("open receipt image: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read receipt image: %w", err)
	}
	if len(data) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "read receipt image", errors.New("empty image"))
	}
	job.Image = data
	return nil
}

// plan matches every scanned line and derives its due date from the purchase
// date. Receipts without a readable date fall back to the upload date.
func (uc *ProcessScanUseCase) plan(job *domain.ScanJob, result *domain.AnalysisResult) ([]domain.ScannedItem, []domain.ScheduleRequest) {
	purchased := job.SubmittedAt.In(uc.cfg.Location)
	if result.PurchaseDate != nil && !result.PurchaseDate.IsZero() {
		purchased = *result.PurchaseDate
	}
	anchor := anchorDate(purchased, uc.cfg.Location)
	job.PurchaseDate = &anchor

	items := make([]domain.ScannedItem, 0, len(result.Items))
	requests := make([]domain.ScheduleRequest, 0, len(result.Items))
	for _, line := range result.Items {
		name := strings.TrimSpace(line.RawName)
		if name == "" {
			continue
		}

		match := uc.matcher.Match(name)
		due := anchor.Add(match.DueInterval)
		item := domain.ScannedItem{
			RawName:   name,
			DueDate:   due,
			Scheduled: true,
		}
		if match.Matched != nil {
			item.MatchedName = match.Matched.Name
			item.Category = match.Matched.Category
		} else if uc.cfg.SuggestionLimit > 0 {
			slog.Info("scan_item_unmatched",
				"scan_id", job.ID,
				"item", name,
				"suggestions", uc.matcher.Suggest(name, uc.cfg.SuggestionLimit),
			)
		}
		if uc.observer != nil {
			uc.observer.ObserveMatch(match.Matched != nil)
		}

		items = append(items, item)
		dueDate := due
		requests = append(requests, domain.ScheduleRequest{ItemName: name, DueDate: &dueDate})
	}
	return items, requests
}

// persistState stores a transition. It runs even when ctx is cancelled so a
// cancelled scan still ends up with its final state recorded.
func (uc *ProcessScanUseCase) persistState(ctx context.Context, job *domain.ScanJob) {
	if err := uc.repo.UpdateState(context.WithoutCancel(ctx), job); err != nil {
		slog.Error("scan_state_persist_failed", "scan_id", job.ID, "state", string(job.State), "error", err)
	}
}

func (uc *ProcessScanUseCase) observeScan(job *domain.ScanJob, start time.Time) {
	if uc.observer != nil {
		uc.observer.ObserveScan(job.State, job.Attempt, time.Since(start))
	}
}

// anchorDate pins the calendar date of t (as written in t's own location) to
// noon in loc, so adding whole days never lands on a neighbouring date
// around DST changes.
func anchorDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, loc)
}

// applyFailures marks failed items; plan emits one request per item, so a
// failure's batch index is the item's index.
func applyFailures(items []domain.ScannedItem, failures []domain.ItemFailure) {
	for _, f := range failures {
		if f.Index < 0 || f.Index >= len(items) {
			continue
		}
		items[f.Index].Scheduled = false
		if f.Err != nil {
			items[f.Index].Error = f.Err.Error()
		}
	}
}
