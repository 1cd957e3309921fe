package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Create(ctx context.Context, job *domain.ScanJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO scan_jobs (
	id, filename, mime_type, storage_key, operation_handle, attempt, state, error_message, purchase_date, submitted_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		job.ID, job.Filename, job.MimeType, job.StorageKey, nullableString(job.OperationHandle), job.Attempt,
		string(job.State), nullableString(job.Error), nullableTime(job.PurchaseDate), job.SubmittedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan job: %w", err)
	}
	return nil
}

func (r *ScanRepository) GetByID(ctx context.Context, id string) (*domain.ScanJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_key, COALESCE(operation_handle, ''), attempt, state,
	COALESCE(error_message, ''), purchase_date, submitted_at, updated_at
FROM scan_jobs
WHERE id = $1
`, id)

	var (
		job          domain.ScanJob
		state        string
		purchaseDate sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.Filename, &job.MimeType, &job.StorageKey, &job.OperationHandle, &job.Attempt, &state,
		&job.Error, &purchaseDate, &job.SubmittedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get scan job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan scan job: %w", err)
	}
	job.State = domain.ScanState(state)
	if purchaseDate.Valid {
		t := purchaseDate.Time
		job.PurchaseDate = &t
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Items = items
	return &job, nil
}

func (r *ScanRepository) listItems(ctx context.Context, scanID string) ([]domain.ScannedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT raw_name, COALESCE(matched_name, ''), COALESCE(category, ''), due_date, scheduled, COALESCE(error_message, '')
FROM scan_items
WHERE scan_id = $1
ORDER BY position ASC
`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list scan items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScannedItem, 0)
	for rows.Next() {
		var item domain.ScannedItem
		if err := rows.Scan(&item.RawName, &item.MatchedName, &item.Category, &item.DueDate, &item.Scheduled, &item.Error); err != nil {
			return nil, fmt.Errorf("scan scan item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan items: %w", err)
	}
	return out, nil
}

// UpdateState persists the orchestrator-owned fields of job.
func (r *ScanRepository) UpdateState(ctx context.Context, job *domain.ScanJob) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE scan_jobs
SET operation_handle = $2, attempt = $3, state = $4, error_message = $5, updated_at = $6
WHERE id = $1
`, job.ID, nullableString(job.OperationHandle), job.Attempt, string(job.State), nullableString(job.Error), now)
	if err != nil {
		return fmt.Errorf("update scan state: %w", err)
	}
	if err := ensureAffected(res, "update scan state", job.ID); err != nil {
		return err
	}
	job.UpdatedAt = now
	return nil
}

// SaveItems replaces the stored items and purchase date of job in one transaction.
func (r *ScanRepository) SaveItems(ctx context.Context, job *domain.ScanJob) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save items tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE scan_jobs
SET purchase_date = $2, updated_at = $3
WHERE id = $1
`, job.ID, nullableTime(job.PurchaseDate), now)
	if err != nil {
		return fmt.Errorf("update purchase date: %w", err)
	}
	if err := ensureAffected(res, "save scan items", job.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_items WHERE scan_id = $1`, job.ID); err != nil {
		return fmt.Errorf("clear scan items: %w", err)
	}
	for i, item := range job.Items {
		_, err := tx.ExecContext(ctx, `
INSERT INTO scan_items (scan_id, position, raw_name, matched_name, category, due_date, scheduled, error_message)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, job.ID, i, item.RawName, nullableString(item.MatchedName), nullableString(item.Category),
			item.DueDate.UTC(), item.Scheduled, nullableString(item.Error))
		if err != nil {
			return fmt.Errorf("insert scan item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save items tx: %w", err)
	}
	job.UpdatedAt = now
	return nil
}

func ensureAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
