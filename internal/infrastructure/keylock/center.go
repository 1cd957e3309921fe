package keylock

import (
	"context"
	"fmt"

	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

// CenterLocker guards a notification center with an in-process Local locker.
// It only serializes callers that share the same CenterLocker.
type CenterLocker struct {
	locks  *Local
	center ports.NotificationCenter
}

func NewCenterLocker(center ports.NotificationCenter) *CenterLocker {
	return &CenterLocker{locks: NewLocal(), center: center}
}

func (c *CenterLocker) WithLock(ctx context.Context, key string, fn func(context.Context, ports.NotificationCenter) error) error {
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock day %s: %w", key, err)
	}
	defer unlock()
	return fn(ctx, c.center)
}
