package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

func TestReferenceItemsFetchAllKeepsRowOrder(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewReferenceItemRepository(db)

	mock.ExpectQuery("SELECT name, category, fridge_days").
		WillReturnRows(sqlmock.NewRows([]string{"name", "category", "fridge_days", "freezer_days", "shelf_days"}).
			AddRow("Milk", "Dairy", 7.0, 90.0, 0.0).
			AddRow("Eggs", "Dairy", 21.0, 365.0, 0.0))

	items, err := repo.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 2 || items[0].Name != "Milk" || items[1].FridgeDays != 21 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestReferenceItemsReplaceAllRollsBackOnInsertError(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewReferenceItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reference_items").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO reference_items").
		WithArgs("Milk", "Dairy", 7.0, 0.0, 0.0).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), []domain.ReferenceItem{{Name: "Milk", Category: "Dairy", FridgeDays: 7}})
	if err == nil {
		t.Fatalf("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
