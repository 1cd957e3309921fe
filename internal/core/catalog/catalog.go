// Package catalog holds the reference expiration catalog for one process
// lifetime. It is loaded once at startup and read-only afterwards.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

type Catalog struct {
	items    []domain.ReferenceItem
	loadedAt time.Time
}

// New builds a catalog from an explicit item list, mostly for tests and
// fixed seed data.
func New(items []domain.ReferenceItem) *Catalog {
	return &Catalog{
		items:    sanitize(items),
		loadedAt: time.Now().UTC(),
	}
}

// Load fetches every reference item from source. Rows without a name are
// dropped; an empty catalog is an error because every scan would fall back.
func Load(ctx context.Context, source ports.CatalogSource) (*Catalog, error) {
	if source == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load catalog", errors.New("catalog source is nil"))
	}
	raw, err := source.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	cat := New(raw)
	if len(cat.items) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load catalog", errors.New("catalog is empty"))
	}
	if dropped := len(raw) - len(cat.items); dropped > 0 {
		slog.Warn("catalog_rows_dropped", "dropped", dropped, "kept", len(cat.items))
	}
	slog.Info("catalog_loaded", "items", len(cat.items))
	return cat, nil
}

// Items returns a copy so callers cannot mutate the shared catalog.
func (c *Catalog) Items() []domain.ReferenceItem {
	if c == nil {
		return nil
	}
	out := make([]domain.ReferenceItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

func (c *Catalog) LoadedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.loadedAt
}

func sanitize(items []domain.ReferenceItem) []domain.ReferenceItem {
	out := make([]domain.ReferenceItem, 0, len(items))
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		item.Category = strings.TrimSpace(item.Category)
		out = append(out, item)
	}
	return out
}
