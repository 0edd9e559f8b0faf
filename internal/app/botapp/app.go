package botapp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/app/core"
	"github.com/goblin987/ultramaxgoodbot/internal/config"
	tginfra "github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	"github.com/goblin987/ultramaxgoodbot/internal/jobs/cleanup"
	redrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/redis"
	"github.com/goblin987/ultramaxgoodbot/internal/services/flow"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	core       *core.Core
	router     *Router
	cleanupJob *cleanup.Job
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	c, err := core.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := RouterDeps{
		Users:    c.Users,
		Catalog:  c.Products,
		Baskets:  c.Inventory,
		Checkout: c.Checkout,
		Payments: c.Payments,
		Intake:   c.Intake,
		Flow:     flow.NewMachine(redrepo.NewFlowRepo(c.Redis, cfg.Redis.FlowTTL)),
		IsWorker: cfg.Bot.IsWorker,
		Logger:   logger,
	}
	if c.Bot != nil {
		deps.Messenger = c.Bot
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		core:       c,
		router:     NewRouter(deps, cfg.Shop.Currency, cfg.Shop.MinDeposit),
		cleanupJob: cleanup.New(c.Payments, c.Inventory, cfg.Bot.CleanupInterval, logger),
	}, nil
}

// Run polls telegram and runs the expiry sweeper until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	errCh := make(chan error, 2)
	go func() {
		a.cleanupJob.Loop(ctx)
		errCh <- nil
	}()

	if a.core.Bot != nil {
		go func() {
			errCh <- a.core.Bot.Listen(ctx, tginfra.Handlers{
				OnCommand:  a.router.HandleCommand,
				OnText:     a.router.HandleText,
				OnCallback: a.router.HandleCallback,
				OnMedia:    a.router.HandleMedia,
				OnError: func(err error) {
					a.logger.Error("telegram update failed", zap.Error(err))
				},
			})
		}()
	} else {
		a.logger.Warn("BOT_TOKEN is empty, telegram listener disabled")
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) Close() error {
	if a.core == nil {
		return nil
	}
	return a.core.Close()
}
