package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

// ScanSubmitter is the inbound contract for receipt upload.
type ScanSubmitter interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.ScanJob, error)
}

// ScanReader is the inbound read model for scan state.
type ScanReader interface {
	GetByID(ctx context.Context, id string) (*domain.ScanJob, error)
}

// ScanProcessor is the inbound contract for asynchronous scan processing.
type ScanProcessor interface {
	ProcessByID(ctx context.Context, scanID string) error
}

// ItemMatcher maps scanned names onto the reference catalog.
type ItemMatcher interface {
	Match(scannedName string) domain.MatchResult
	Suggest(scannedName string, limit int) []string
}

// ReminderScheduler owns the day-bucketed reminder records.
type ReminderScheduler interface {
	Schedule(ctx context.Context, itemName string, dueDate time.Time) error
	Remove(ctx context.Context, itemName string, dueDate time.Time) error
	BulkSchedule(ctx context.Context, requests []domain.ScheduleRequest) domain.BulkScheduleResult
	Pending(ctx context.Context) ([]domain.ReminderRecord, error)
}
