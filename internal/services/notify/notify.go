package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	"github.com/goblin987/ultramaxgoodbot/internal/services/metrics"
)

const maxSendAttempts = 3

// Sink delivers chat messages to users.
type Sink interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) error
	SendMediaGroup(ctx context.Context, chatID int64, items []telegram.Media) error
	SendAnimation(ctx context.Context, chatID int64, item telegram.Media) error
}

// Alerter reaches the operator about states that need manual action.
type Alerter interface {
	Alert(ctx context.Context, text string, fields ...zap.Field)
}

// Throttled wraps a Sink with a global send rate and retries flood-control
// rejections after the delay telegram asks for.
type Throttled struct {
	next    Sink
	limiter *rate.Limiter
	log     *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

func NewThrottled(next Sink, perSecond int, log *zap.Logger) *Throttled {
	if perSecond <= 0 {
		perSecond = 25
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		log:     log,
		sleep:   sleepCtx,
	}
}

func (t *Throttled) SendText(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) error {
	return t.retry(ctx, "text", chatID, func() error {
		return t.next.SendText(ctx, chatID, text, keyboard)
	})
}

func (t *Throttled) SendMediaGroup(ctx context.Context, chatID int64, items []telegram.Media) error {
	return t.retry(ctx, "media_group", chatID, func() error {
		return t.next.SendMediaGroup(ctx, chatID, items)
	})
}

func (t *Throttled) SendAnimation(ctx context.Context, chatID int64, item telegram.Media) error {
	return t.retry(ctx, "animation", chatID, func() error {
		return t.next.SendAnimation(ctx, chatID, item)
	})
}

func (t *Throttled) retry(ctx context.Context, kind string, chatID int64, send func() error) error {
	if t.next == nil {
		return fmt.Errorf("notify sink is nil")
	}

	var err error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait send slot: %w", err)
		}
		err = send()
		if err == nil {
			return nil
		}
		delay := telegram.RetryAfter(err)
		if delay <= 0 || attempt == maxSendAttempts {
			break
		}
		t.log.Warn("telegram flood control, retrying",
			zap.String("kind", kind),
			zap.Int64("chat_id", chatID),
			zap.Duration("retry_after", delay),
		)
		if err := t.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return err
}

// AdminAlerter logs alerts at error level and forwards them to the admin
// chat when one is configured.
type AdminAlerter struct {
	sink   Sink
	chatID int64
	log    *zap.Logger
}

func NewAdminAlerter(sink Sink, chatID int64, log *zap.Logger) *AdminAlerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminAlerter{sink: sink, chatID: chatID, log: log}
}

func (a *AdminAlerter) Alert(ctx context.Context, text string, fields ...zap.Field) {
	metrics.CriticalAlerts.Inc()
	a.log.Error(text, append(fields, zap.String("severity", "critical"))...)

	if a.sink == nil || a.chatID == 0 {
		return
	}
	if err := a.sink.SendText(ctx, a.chatID, "🚨 "+text, nil); err != nil {
		a.log.Error("send admin alert failed", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
