package catalogsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/resilience"
)

func TestYAMLFileFetchAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `items:
  - name: Milk
    category: Dairy
    fridge_days: 7
    freezer_days: 90
  - name: Banana
    category: Produce
    fridge_days: 9
    shelf_days: 4.5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	items, err := NewYAMLFile(path).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Name != "Milk" || items[0].FreezerDays != 90 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].ShelfDays != 4.5 {
		t.Fatalf("expected fractional shelf days, got %v", items[1].ShelfDays)
	}
}

func TestYAMLFileRejectsMalformedDocument(t *testing.T) {
	_, err := decodeYAML([]byte("items: [name: {"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cellRef, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestXLSXFileReadsHeaderInAnyOrder(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Category", "Name", "Shelf", "Fridge"},
		{"Dairy", "Milk", "", 7},
		{"Produce", "Banana", 4.5, 9},
	})

	items, err := NewXLSXFile(path, "").FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Name != "Milk" || items[0].Category != "Dairy" || items[0].FridgeDays != 7 || items[0].ShelfDays != 0 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].ShelfDays != 4.5 || items[1].FreezerDays != 0 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
}

func TestXLSXFileRequiresNameColumn(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"Product", "Fridge"}, {"Milk", 7}})

	_, err := NewXLSXFile(path, "Sheet1").FetchAll(context.Background())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestXLSXFileRejectsBadDays(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"Name", "Fridge"}, {"Milk", "a week"}})

	_, err := NewXLSXFile(path, "Sheet1").FetchAll(context.Background())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type catalogSourceFake struct {
	calls int
	errs  []error
	items []domain.ReferenceItem
}

func (f *catalogSourceFake) FetchAll(context.Context) ([]domain.ReferenceItem, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.items, nil
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})
}

func TestResilientRetriesTransientFailure(t *testing.T) {
	fake := &catalogSourceFake{
		errs:  []error{errors.New("connection refused")},
		items: []domain.ReferenceItem{{Name: "Milk", FridgeDays: 7}},
	}

	items, err := NewResilient(fake, fastExecutor()).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if fake.calls != 2 || len(items) != 1 {
		t.Fatalf("expected 2 calls and 1 item, got %d calls %d items", fake.calls, len(items))
	}
}

func TestResilientDoesNotRetryInvalidCatalog(t *testing.T) {
	fake := &catalogSourceFake{
		errs: []error{domain.WrapError(domain.ErrInvalidInput, "decode", errors.New("bad"))},
	}

	_, err := NewResilient(fake, fastExecutor()).FetchAll(context.Background())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected a single call, got %d", fake.calls)
	}
}

func TestFromFileSelectsByExtension(t *testing.T) {
	if src, err := FromFile("catalog.YML", ""); err != nil {
		t.Fatalf("yaml: %v", err)
	} else if _, ok := src.(*YAMLFile); !ok {
		t.Fatalf("expected yaml source, got %T", src)
	}
	if src, err := FromFile("foodkeeper.xlsx", "Products"); err != nil {
		t.Fatalf("xlsx: %v", err)
	} else if x, ok := src.(*XLSXFile); !ok || x.sheet != "Products" {
		t.Fatalf("expected xlsx source with sheet, got %T", src)
	}
	if _, err := FromFile("catalog.csv", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for csv, got %v", err)
	}
}
