package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const sweepBatch = 200

type invoiceExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
	FlagStuck(ctx context.Context) (int, error)
}

type reservationSweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Job closes invoices past their expiry, escalates settlements that never
// finished and frees basket reservations whose hold ran out. Expired invoices go first so their baskets are released with
// the expiry trigger rather than the basket timeout.
type Job struct {
	invoices     invoiceExpirer
	reservations reservationSweeper
	interval     time.Duration
	logger       *zap.Logger
}

func New(invoices invoiceExpirer, reservations reservationSweeper, interval time.Duration, logger *zap.Logger) *Job {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		invoices:     invoices,
		reservations: reservations,
		interval:     interval,
		logger:       logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	var errs []error

	if j.invoices != nil {
		n, err := j.invoices.ExpireStale(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire invoices: %w", err))
		} else if n > 0 {
			j.logger.Info("cleanup expired invoices completed", zap.Int("expired", n))
		}

		n, err = j.invoices.FlagStuck(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("flag stuck payments: %w", err))
		} else if n > 0 {
			j.logger.Warn("cleanup flagged stuck payments", zap.Int("stuck", n))
		}
	}

	if j.reservations != nil {
		n, err := j.reservations.SweepExpired(ctx, sweepBatch)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep reservations: %w", err))
		} else if n > 0 {
			j.logger.Info("cleanup stale reservations completed", zap.Int("released", n))
		}
	}

	return errors.Join(errs...)
}

// Loop runs the job immediately and then on every tick until ctx ends. Run
// failures are logged; the next tick retries.
func (j *Job) Loop(ctx context.Context) error {
	j.runLogged(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logger.Warn("cleanup run failed", zap.Error(err))
	}
}
