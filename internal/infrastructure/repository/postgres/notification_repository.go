package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NotificationRepository is the notification center backing store. One row
// per pending notification, keyed by day key.
type NotificationRepository struct {
	db *sql.DB
	q  execQuerier
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db, q: db}
}

// WithLock runs fn inside a transaction holding pg_advisory_xact_lock on the
// key, so api and worker processes serialize on the same day. fn gets a
// repository bound to that transaction; the lock holder never needs a second
// pool connection. The lock is released on commit or rollback.
func (r *NotificationRepository) WithLock(ctx context.Context, key string, fn func(context.Context, ports.NotificationCenter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin day tx %s: %w", key, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock day %s: %w", key, err)
	}
	if err := fn(ctx, &NotificationRepository{db: r.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit day tx %s: %w", key, err)
	}
	return nil
}

func (r *NotificationRepository) ListPending(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, deliver_at, item_names, title, body
FROM pending_notifications
ORDER BY deliver_at ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n        domain.Notification
			namesRaw []byte
		)
		if err := rows.Scan(&n.ID, &n.DeliverAt, &namesRaw, &n.Title, &n.Body); err != nil {
			return nil, fmt.Errorf("scan pending notification: %w", err)
		}
		if err := json.Unmarshal(namesRaw, &n.ItemNames); err != nil {
			return nil, fmt.Errorf("unmarshal item names for %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending notifications: %w", err)
	}
	return out, nil
}

// Register upserts on id so a day never holds more than one notification.
func (r *NotificationRepository) Register(ctx context.Context, notification domain.Notification) error {
	namesJSON, err := json.Marshal(notification.ItemNames)
	if err != nil {
		return fmt.Errorf("marshal item names: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO pending_notifications (id, deliver_at, item_names, title, body, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE
SET deliver_at = EXCLUDED.deliver_at,
	item_names = EXCLUDED.item_names,
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	updated_at = EXCLUDED.updated_at
`, notification.ID, notification.DeliverAt.UTC(), namesJSON, notification.Title, notification.Body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("register notification: %w", err)
	}
	return nil
}

// Cancel is a no-op for unknown ids.
func (r *NotificationRepository) Cancel(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM pending_notifications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("cancel notification: %w", err)
	}
	return nil
}
