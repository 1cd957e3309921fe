package domain

import (
	"sort"
	"time"
)

const DayKeyLayout = "2006-01-02"

// DayKey buckets t into a calendar date in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayKeyLayout)
}

// ReminderRecord consolidates every item due on one calendar day. DayKey is
// also the notification id, so at most one record exists per day.
type ReminderRecord struct {
	DayKey    string    `json:"day_key"`
	ItemNames []string  `json:"item_names"`
	DeliverAt time.Time `json:"deliver_at"`
}

// Notification is the payload registered with the notification subsystem.
type Notification struct {
	ID        string    `json:"id"`
	DeliverAt time.Time `json:"deliver_at"`
	ItemNames []string  `json:"item_names"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
}

func (n Notification) Record() ReminderRecord {
	return ReminderRecord{
		DayKey:    n.ID,
		ItemNames: append([]string(nil), n.ItemNames...),
		DeliverAt: n.DeliverAt,
	}
}

// NormalizeItemNames returns a sorted copy with blanks and duplicates removed.
func NormalizeItemNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type ScheduleRequest struct {
	ItemName string     `json:"item_name"`
	DueDate  *time.Time `json:"due_date"`
}

type ItemFailure struct {
	// Index is the request's position in the batch.
	Index    int    `json:"-"`
	ItemName string `json:"item_name"`
	Err      error  `json:"-"`
}

func (f ItemFailure) Error() string {
	if f.Err == nil {
		return f.ItemName
	}
	return f.ItemName + ": " + f.Err.Error()
}

type BulkScheduleResult struct {
	Scheduled int           `json:"scheduled"`
	Failures  []ItemFailure `json:"failures"`
}
