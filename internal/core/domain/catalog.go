package domain

import "time"

type StorageLocation string

const (
	StorageFridge  StorageLocation = "fridge"
	StorageFreezer StorageLocation = "freezer"
	StorageShelf   StorageLocation = "shelf"
)

func ParseStorageLocation(raw string) (StorageLocation, bool) {
	switch StorageLocation(raw) {
	case StorageFridge, StorageFreezer, StorageShelf:
		return StorageLocation(raw), true
	default:
		return "", false
	}
}

// ReferenceItem is one row of the expiration catalog. Names are not unique.
type ReferenceItem struct {
	Name        string  `json:"name" yaml:"name"`
	Category    string  `json:"category" yaml:"category"`
	FridgeDays  float64 `json:"fridge_days" yaml:"fridge_days"`
	FreezerDays float64 `json:"freezer_days" yaml:"freezer_days"`
	ShelfDays   float64 `json:"shelf_days" yaml:"shelf_days"`
}

// Days returns the shelf life for the given storage location.
func (r ReferenceItem) Days(location StorageLocation) float64 {
	switch location {
	case StorageFreezer:
		return r.FreezerDays
	case StorageShelf:
		return r.ShelfDays
	default:
		return r.FridgeDays
	}
}

type MatchResult struct {
	ScannedName string         `json:"scanned_name"`
	Matched     *ReferenceItem `json:"matched,omitempty"`
	DueInterval time.Duration  `json:"due_interval"`
}

// DueDays is DueInterval expressed in (possibly fractional) days.
func (m MatchResult) DueDays() float64 {
	return m.DueInterval.Hours() / 24
}
