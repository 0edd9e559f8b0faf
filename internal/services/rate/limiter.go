package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const invoiceWindow = 10 * time.Minute

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

// Limiter caps how many gateway invoices one user may open per window.
type Limiter struct {
	store      WindowStore
	perWindow  int
	windowSize time.Duration
}

func NewLimiter(store WindowStore, perWindow int) *Limiter {
	if perWindow < 0 {
		perWindow = 0
	}

	return &Limiter{
		store:      store,
		perWindow:  perWindow,
		windowSize: invoiceWindow,
	}
}

// AllowInvoice records an attempt and returns the retry delay when the user
// is over the limit. A zero limit disables the check.
func (l *Limiter) AllowInvoice(ctx context.Context, userID int64) (time.Duration, bool, error) {
	if userID <= 0 {
		return 0, false, fmt.Errorf("invalid user id")
	}
	if l == nil || l.perWindow == 0 {
		return 0, true, nil
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, invoiceKey(userID), l.windowSize)
	if err != nil {
		return 0, false, err
	}
	if count > int64(l.perWindow) {
		return ceilSeconds(ttl), false, nil
	}
	return 0, true, nil
}

func (l *Limiter) RetryAfterInvoice(ctx context.Context, userID int64) (time.Duration, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if l == nil || l.perWindow == 0 {
		return 0, nil
	}
	if l.store == nil {
		return 0, fmt.Errorf("rate limiter store is nil")
	}

	count, ttl, err := l.store.WindowState(ctx, invoiceKey(userID))
	if err != nil {
		return 0, err
	}
	if count >= int64(l.perWindow) {
		return ceilSeconds(ttl), nil
	}
	return 0, nil
}

func invoiceKey(userID int64) string {
	return "rate:invoice:10m:" + strconv.FormatInt(userID, 10)
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	rounded := d.Truncate(time.Second)
	if rounded < d {
		rounded += time.Second
	}
	return rounded
}
