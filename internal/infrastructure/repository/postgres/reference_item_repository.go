package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

// ReferenceItemRepository reads the expiration catalog. Row order is the
// insertion order, which the matcher uses to break ties.
type ReferenceItemRepository struct {
	db *sql.DB
}

func NewReferenceItemRepository(db *sql.DB) *ReferenceItemRepository {
	return &ReferenceItemRepository{db: db}
}

func (r *ReferenceItemRepository) FetchAll(ctx context.Context) ([]domain.ReferenceItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, category, fridge_days, freezer_days, shelf_days
FROM reference_items
ORDER BY id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list reference items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReferenceItem, 0)
	for rows.Next() {
		var item domain.ReferenceItem
		if err := rows.Scan(&item.Name, &item.Category, &item.FridgeDays, &item.FreezerDays, &item.ShelfDays); err != nil {
			return nil, fmt.Errorf("scan reference item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference items: %w", err)
	}
	return out, nil
}

// ReplaceAll swaps the whole catalog, keeping the given order.
func (r *ReferenceItemRepository) ReplaceAll(ctx context.Context, items []domain.ReferenceItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_items`); err != nil {
		return fmt.Errorf("clear reference items: %w", err)
	}
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
INSERT INTO reference_items (name, category, fridge_days, freezer_days, shelf_days)
VALUES ($1,$2,$3,$4,$5)
`, item.Name, item.Category, item.FridgeDays, item.FreezerDays, item.ShelfDays)
		if err != nil {
			return fmt.Errorf("insert reference item %q: %w", item.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}
