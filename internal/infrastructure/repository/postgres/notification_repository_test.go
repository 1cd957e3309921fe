package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

func TestNotificationRegisterUpsertsOnID(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewNotificationRepository(db)

	deliverAt := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO pending_notifications").
		WithArgs("2024-01-10", deliverAt, []byte(`["Eggs","Milk"]`), "Food expiring today", "Eggs, Milk, should be eaten today.", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Register(context.Background(), domain.Notification{
		ID:        "2024-01-10",
		DeliverAt: deliverAt,
		ItemNames: []string{"Eggs", "Milk"},
		Title:     "Food expiring today",
		Body:      "Eggs, Milk, should be eaten today.",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationListPendingDecodesItemNames(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewNotificationRepository(db)

	deliverAt := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, deliver_at, item_names, title, body").
		WillReturnRows(sqlmock.NewRows([]string{"id", "deliver_at", "item_names", "title", "body"}).
			AddRow("2024-01-10", deliverAt, []byte(`["Eggs","Milk"]`), "t", "b"))

	got, err := repo.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "2024-01-10" || len(got[0].ItemNames) != 2 || got[0].ItemNames[1] != "Milk" {
		t.Fatalf("unexpected notifications %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationListPendingRejectsCorruptNames(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery("SELECT id, deliver_at, item_names, title, body").
		WillReturnRows(sqlmock.NewRows([]string{"id", "deliver_at", "item_names", "title", "body"}).
			AddRow("2024-01-10", time.Now(), []byte(`{not json`), "t", "b"))

	if _, err := repo.ListPending(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNotificationCancelDeletesByID(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("DELETE FROM pending_notifications").
		WithArgs("2024-01-10").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Cancel(context.Background(), "2024-01-10"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationWithLockRunsSectionInsideLockedTx(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(hashtext\\(\\$1\\)\\)").
		WithArgs("2024-01-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM pending_notifications").
		WithArgs("2024-01-10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithLock(context.Background(), "2024-01-10", func(ctx context.Context, center ports.NotificationCenter) error {
		return center.Cancel(ctx, "2024-01-10")
	})
	if err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationWithLockRollsBackOnSectionError(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("2024-01-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	wantErr := errors.New("publish failed")
	err := repo.WithLock(context.Background(), "2024-01-10", func(context.Context, ports.NotificationCenter) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected section error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
