package ports

import (
	"context"
	"io"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

// AnalysisClient talks to the remote receipt analysis backend.
type AnalysisClient interface {
	Submit(ctx context.Context, image []byte, mimeType string) (string, error)
	Poll(ctx context.Context, operationHandle string) (*domain.AnalysisResult, error)
}

// CatalogSource fetches the reference expiration catalog.
type CatalogSource interface {
	FetchAll(ctx context.Context) ([]domain.ReferenceItem, error)
}

// NotificationCenter is the external notification subsystem. Ids are day keys;
// Register replaces any notification already registered under the same id.
type NotificationCenter interface {
	ListPending(ctx context.Context) ([]domain.Notification, error)
	Register(ctx context.Context, notification domain.Notification) error
	Cancel(ctx context.Context, id string) error
}

// NotificationLocker runs fn as the only holder of key. fn must use the
// center it is handed: database-backed lockers bind it to the connection that
// holds the lock. Sections are not reentrant.
type NotificationLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context, center NotificationCenter) error) error
}

// ScanRepository persists scan job state.
type ScanRepository interface {
	Create(ctx context.Context, job *domain.ScanJob) error
	GetByID(ctx context.Context, id string) (*domain.ScanJob, error)
	UpdateState(ctx context.Context, job *domain.ScanJob) error
	SaveItems(ctx context.Context, job *domain.ScanJob) error
}

// ObjectStorage stores uploaded receipt images.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes scan submissions and due reminders.
type MessageQueue interface {
	PublishScanSubmitted(ctx context.Context, scanID string) error
	SubscribeScanSubmitted(ctx context.Context, handler func(context.Context, string) error) error
	PublishReminderDue(ctx context.Context, reminder domain.Notification) error
}

// ReceiptInspector detects the content type of an uploaded receipt and
// rejects files the analysis backend cannot read.
type ReceiptInspector interface {
	Inspect(data []byte) (mimeType string, err error)
}
