package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

type ReminderConfig struct {
	Location       *time.Location
	DeliveryHour   int
	DeliveryMinute int
}

func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Location:     time.Local,
		DeliveryHour: 8,
	}
}

func (c ReminderConfig) normalize() ReminderConfig {
	out := c
	if out.Location == nil {
		out.Location = time.Local
	}
	if out.DeliveryHour < 0 || out.DeliveryHour > 23 {
		out.DeliveryHour = 8
	}
	if out.DeliveryMinute < 0 || out.DeliveryMinute > 59 {
		out.DeliveryMinute = 0
	}
	return out
}

// ReminderObserver receives per-item scheduling outcomes. Optional.
type ReminderObserver interface {
	ObserveReminder(operation string, err error)
}

// ReminderStore keeps exactly one notification per calendar day. Every
// mutation runs list, mutate, register/cancel inside the day's locked section, so
// concurrent writers to the same day never lose an item.
type ReminderStore struct {
	center   ports.NotificationCenter
	locker   ports.NotificationLocker
	cfg      ReminderConfig
	observer ReminderObserver
}

func NewReminderStore(center ports.NotificationCenter, locker ports.NotificationLocker, cfg ReminderConfig) *ReminderStore {
	return &ReminderStore{
		center: center,
		locker: locker,
		cfg:    cfg.normalize(),
	}
}

func (s *ReminderStore) WithObserver(observer ReminderObserver) *ReminderStore {
	s.observer = observer
	return s
}

func (s *ReminderStore) Location() *time.Location {
	return s.cfg.Location
}

func (s *ReminderStore) Schedule(ctx context.Context, itemName string, dueDate time.Time) error {
	err := s.schedule(ctx, itemName, dueDate)
	s.observe("schedule", err)
	return err
}

func (s *ReminderStore) schedule(ctx context.Context, itemName string, dueDate time.Time) error {
	itemName = strings.TrimSpace(itemName)
	if err := validateReminderInput(itemName, dueDate); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "schedule reminder", err)
	}
	key := domain.DayKey(dueDate, s.cfg.Location)

	return s.withDay(ctx, key, "schedule reminder", func(ctx context.Context, center ports.NotificationCenter, existing *domain.Notification) error {
		if existing == nil {
			return s.register(ctx, center, key, []string{itemName})
		}
		names := domain.NormalizeItemNames(append(append([]string(nil), existing.ItemNames...), itemName))
		if sameNames(names, existing.ItemNames) {
			return nil
		}
		return s.register(ctx, center, key, names)
	})
}

func (s *ReminderStore) Remove(ctx context.Context, itemName string, dueDate time.Time) error {
	err := s.remove(ctx, itemName, dueDate)
	s.observe("remove", err)
	return err
}

func (s *ReminderStore) remove(ctx context.Context, itemName string, dueDate time.Time) error {
	itemName = strings.TrimSpace(itemName)
	if err := validateReminderInput(itemName, dueDate); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "remove reminder", err)
	}
	key := domain.DayKey(dueDate, s.cfg.Location)

	return s.withDay(ctx, key, "remove reminder", func(ctx context.Context, center ports.NotificationCenter, existing *domain.Notification) error {
		if existing == nil {
			return nil
		}
		names := make([]string, 0, len(existing.ItemNames))
		for _, name := range existing.ItemNames {
			if name != itemName {
				names = append(names, name)
			}
		}
		names = domain.NormalizeItemNames(names)
		switch {
		case len(names) == 0:
			if err := center.Cancel(ctx, key); err != nil {
				return fmt.Errorf("cancel notification %s: %w", key, err)
			}
			return nil
		case sameNames(names, existing.ItemNames):
			return nil
		default:
			return s.register(ctx, center, key, names)
		}
	})
}

// BulkSchedule schedules every request independently. A failed item never
// stops the rest of the batch; failures come back attributed to their item.
func (s *ReminderStore) BulkSchedule(ctx context.Context, requests []domain.ScheduleRequest) domain.BulkScheduleResult {
	result := domain.BulkScheduleResult{Failures: []domain.ItemFailure{}}
	for i, req := range requests {
		var err error
		if req.DueDate == nil {
			err = domain.WrapError(domain.ErrInvalidInput, "schedule reminder", errors.New("missing due date"))
			s.observe("schedule", err)
		} else {
			err = s.Schedule(ctx, req.ItemName, *req.DueDate)
		}

		if err != nil {
			slog.Warn("reminder_schedule_failed", "item", req.ItemName, "error", err)
			result.Failures = append(result.Failures, domain.ItemFailure{Index: i, ItemName: req.ItemName, Err: err})
			continue
		}
		result.Scheduled++
	}
	return result
}

// Pending lists current records ordered by day.
func (s *ReminderStore) Pending(ctx context.Context) ([]domain.ReminderRecord, error) {
	pending, err := s.center.ListPending(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrScheduling, "list reminders", err)
	}
	out := make([]domain.ReminderRecord, 0, len(pending))
	for _, n := range pending {
		out = append(out, n.Record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayKey < out[j].DayKey })
	return out, nil
}

// withDay runs fn with the current notification for key inside the day's
// critical section. Errors from the notification subsystem are tagged as
// scheduling failures.
func (s *ReminderStore) withDay(
	ctx context.Context,
	key, operation string,
	fn func(ctx context.Context, center ports.NotificationCenter, existing *domain.Notification) error,
) error {
	err := s.locker.WithLock(ctx, key, func(ctx context.Context, center ports.NotificationCenter) error {
		existing, err := findNotification(ctx, center, key)
		if err != nil {
			return err
		}
		return fn(ctx, center, existing)
	})
	if err != nil {
		return domain.WrapError(domain.ErrScheduling, operation, err)
	}
	return nil
}

func (s *ReminderStore) register(ctx context.Context, center ports.NotificationCenter, key string, names []string) error {
	notification, err := s.buildNotification(key, names)
	if err != nil {
		return err
	}
	if err := center.Register(ctx, notification); err != nil {
		return fmt.Errorf("register notification %s: %w", key, err)
	}
	return nil
}

func (s *ReminderStore) buildNotification(key string, names []string) (domain.Notification, error) {
	day, err := time.ParseInLocation(domain.DayKeyLayout, key, s.cfg.Location)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("parse day key %s: %w", key, err)
	}
	names = domain.NormalizeItemNames(names)
	title, body := reminderContent(names)
	return domain.Notification{
		ID:        key,
		DeliverAt: time.Date(day.Year(), day.Month(), day.Day(), s.cfg.DeliveryHour, s.cfg.DeliveryMinute, 0, 0, s.cfg.Location),
		ItemNames: names,
		Title:     title,
		Body:      body,
	}, nil
}

func (s *ReminderStore) observe(operation string, err error) {
	if s.observer != nil {
		s.observer.ObserveReminder(operation, err)
	}
}

func findNotification(ctx context.Context, center ports.NotificationCenter, key string) (*domain.Notification, error) {
	pending, err := center.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	var found *domain.Notification
	for i := range pending {
		if pending[i].ID != key {
			continue
		}
		if found != nil {
			slog.Warn("duplicate_day_notification", "day_key", key)
			continue
		}
		n := pending[i]
		found = &n
	}
	return found, nil
}

func reminderContent(names []string) (string, string) {
	title := "Food expiring today"
	switch len(names) {
	case 0:
		return title, ""
	case 1:
		return title, names[0] + " should be eaten today."
	default:
		return title, strings.Join(names, ", ") + " should be eaten today."
	}
}

func validateReminderInput(itemName string, dueDate time.Time) error {
	if itemName == "" {
		return errors.New("item name is required")
	}
	if dueDate.IsZero() {
		return errors.New("due date is required")
	}
	return nil
}

func sameNames(a, b []string) bool {
	b = domain.NormalizeItemNames(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
