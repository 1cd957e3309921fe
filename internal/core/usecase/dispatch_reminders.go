package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

// ReminderDispatcher hands due notifications to the delivery channel and
// retires them. It takes the same day lock as ReminderStore so a delivery
// never interleaves with a schedule/remove on that day.
type ReminderDispatcher struct {
	center   ports.NotificationCenter
	locker   ports.NotificationLocker
	queue    ports.MessageQueue
	now      func() time.Time
	observer DispatchObserver
}

type DispatchObserver interface {
	ObserveDispatch(err error)
}

func NewReminderDispatcher(center ports.NotificationCenter, locker ports.NotificationLocker, queue ports.MessageQueue) *ReminderDispatcher {
	return &ReminderDispatcher{
		center: center,
		locker: locker,
		queue:  queue,
		now:    time.Now,
	}
}

func (d *ReminderDispatcher) WithObserver(observer DispatchObserver) *ReminderDispatcher {
	d.observer = observer
	return d
}

// DispatchDue publishes every notification whose delivery time has passed.
// Failures are per notification; the rest are still attempted.
func (d *ReminderDispatcher) DispatchDue(ctx context.Context) (int, error) {
	pending, err := d.center.ListPending(ctx)
	if err != nil {
		return 0, domain.WrapError(domain.ErrScheduling, "dispatch reminders", err)
	}

	now := d.now()
	dispatched := 0
	var firstErr error
	for _, n := range pending {
		if n.DeliverAt.After(now) {
			continue
		}
		err := d.dispatchOne(ctx, n.ID, now)
		if d.observer != nil {
			d.observer.ObserveDispatch(err)
		}
		if err != nil {
			slog.Error("reminder_dispatch_failed", "day_key", n.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		dispatched++
	}
	return dispatched, firstErr
}

func (d *ReminderDispatcher) dispatchOne(ctx context.Context, key string, now time.Time) error {
	return d.locker.WithLock(ctx, key, func(ctx context.Context, center ports.NotificationCenter) error {
		// Re-read inside the section; the record may have changed or gone since listing.
		current, err := findNotification(ctx, center, key)
		if err != nil {
			return err
		}
		if current == nil || current.DeliverAt.After(now) {
			return nil
		}

		if err := d.queue.PublishReminderDue(ctx, *current); err != nil {
			return fmt.Errorf("publish reminder %s: %w", key, err)
		}
		if err := center.Cancel(ctx, key); err != nil {
			return fmt.Errorf("retire reminder %s: %w", key, err)
		}
		slog.Info("reminder_dispatched", "day_key", key, "items", len(current.ItemNames))
		return nil
	})
}
