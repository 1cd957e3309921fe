package catalogsource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

// XLSXFile reads a spreadsheet whose first row is a header naming the
// columns Name, Category, Fridge, Freezer and Shelf in any order. Only Name is
// required. Day columns that are empty count as zero.
type XLSXFile struct {
	path  string
	sheet string
}

func NewXLSXFile(path, sheet string) *XLSXFile {
	return &XLSXFile{path: path, sheet: sheet}
}

func (s *XLSXFile) FetchAll(_ context.Context) ([]domain.ReferenceItem, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return readSheet(f, s.sheet)
}

func readSheet(f *excelize.File, sheet string) ([]domain.ReferenceItem, error) {
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := headerColumns(rows[0])
	nameCol, ok := columns["name"]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read catalog sheet", fmt.Errorf("sheet %q has no Name column", sheet))
	}

	out := make([]domain.ReferenceItem, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		item := domain.ReferenceItem{
			Name:     cell(row, nameCol),
			Category: cell(row, columnOr(columns, "category")),
		}
		days := []struct {
			column string
			target *float64
		}{
			{"fridge", &item.FridgeDays},
			{"freezer", &item.FreezerDays},
			{"shelf", &item.ShelfDays},
		}
		for _, d := range days {
			v, err := parseDays(cell(row, columnOr(columns, d.column)))
			if err != nil {
				return nil, domain.WrapError(domain.ErrInvalidInput, "read catalog sheet",
					fmt.Errorf("row %d column %s: %w", line, d.column, err))
			}
			*d.target = v
		}
		out = append(out, item)
	}
	return out, nil
}

func headerColumns(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = i
		}
	}
	return out
}

func columnOr(columns map[string]int, name string) int {
	if idx, ok := columns[name]; ok {
		return idx
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseDays(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative days %v", v)
	}
	return v, nil
}
