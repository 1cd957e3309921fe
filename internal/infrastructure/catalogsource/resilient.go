package catalogsource

import (
	"context"
	"errors"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/resilience"
)

// Resilient retries a catalog source through the shared executor. Catalog
// loads happen at startup, usually while the database is still coming up.
type Resilient struct {
	next     ports.CatalogSource
	executor *resilience.Executor
}

func NewResilient(next ports.CatalogSource, executor *resilience.Executor) *Resilient {
	return &Resilient{next: next, executor: executor}
}

func (s *Resilient) FetchAll(ctx context.Context) ([]domain.ReferenceItem, error) {
	return resilience.ExecuteValue(ctx, s.executor, "catalog fetch", s.next.FetchAll, classifyCatalogError)
}

func classifyCatalogError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
