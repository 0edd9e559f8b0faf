// Package core builds the shop services shared by the bot and the API
// processes from one config.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/config"
	"github.com/goblin987/ultramaxgoodbot/internal/infra/httpclient"
	s3infra "github.com/goblin987/ultramaxgoodbot/internal/infra/s3"
	tginfra "github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	pgrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/postgres"
	redrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/redis"
	balancesvc "github.com/goblin987/ultramaxgoodbot/internal/services/balance"
	checkoutsvc "github.com/goblin987/ultramaxgoodbot/internal/services/checkout"
	"github.com/goblin987/ultramaxgoodbot/internal/services/events"
	"github.com/goblin987/ultramaxgoodbot/internal/services/gateway"
	intakesvc "github.com/goblin987/ultramaxgoodbot/internal/services/intake"
	inventorysvc "github.com/goblin987/ultramaxgoodbot/internal/services/inventory"
	mediasvc "github.com/goblin987/ultramaxgoodbot/internal/services/media"
	"github.com/goblin987/ultramaxgoodbot/internal/services/notify"
	paymentsvc "github.com/goblin987/ultramaxgoodbot/internal/services/payments"
	ratesvc "github.com/goblin987/ultramaxgoodbot/internal/services/rate"
)

type Core struct {
	Postgres *pgxpool.Pool
	Redis    *goredis.Client
	Bot      *tginfra.Bot
	Sink     notify.Sink
	Alerter  notify.Alerter

	Users     *pgrepo.UserRepo
	Products  *pgrepo.ProductRepo
	Purchases *pgrepo.PurchaseRepo

	Inventory *inventorysvc.Service
	Balances  *balancesvc.Service
	Checkout  *checkoutsvc.Service
	Payments  *paymentsvc.Service
	Media     *mediasvc.Service
	Intake    *intakesvc.Service

	publisher *events.KafkaPublisher
}

// New connects to postgres, redis and the optional object store, then wires
// the services. The telegram bot is created only when a token is set.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Core, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	c := &Core{Postgres: pool, Redis: redisClient}

	var bot *tginfra.Bot
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		bot, err = tginfra.NewBot(cfg.Bot.Token, cfg.Bot.MaxConcurrency)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		c.Bot = bot
	} else {
		log.Warn("BOT_TOKEN is empty, chat delivery disabled")
	}

	var sink notify.Sink
	if bot != nil {
		sink = notify.NewThrottled(bot, cfg.Bot.SendRatePerSec, log)
	} else {
		sink = notify.NewThrottled(nil, cfg.Bot.SendRatePerSec, log)
	}
	c.Sink = sink
	c.Alerter = notify.NewAdminAlerter(sink, cfg.Bot.AdminChatID, log)

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		c.publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), log)
		pub = c.publisher
	}

	tx := pgrepo.NewTransactor(pool)
	c.Users = pgrepo.NewUserRepo(pool)
	c.Products = pgrepo.NewProductRepo(pool)
	c.Purchases = pgrepo.NewPurchaseRepo(pool)
	auditRepo := pgrepo.NewAuditRepo(pool)
	basketRepo := pgrepo.NewBasketRepo(pool)
	discountRepo := pgrepo.NewDiscountRepo(pool)
	mediaRepo := pgrepo.NewMediaRepo(pool)
	depositRepo := pgrepo.NewPendingDepositRepo(pool)

	c.Media = newMediaService(cfg, mediaRepo, bot, log)

	c.Inventory = inventorysvc.NewService(c.Products, basketRepo, tx, pub, cfg.Bot.BasketTimeout, log)
	c.Balances = balancesvc.NewService(c.Users, auditRepo, tx, sink, pub, cfg.Shop.Currency, log)

	finalizer := checkoutsvc.NewFinalizer(checkoutsvc.FinalizerDeps{
		Products:  c.Products,
		Purchases: c.Purchases,
		Users:     c.Users,
		Baskets:   basketRepo,
		Codes:     discountRepo,
		Tx:        tx,
		Logger:    log,
	})
	c.Checkout = checkoutsvc.NewService(checkoutsvc.Dependencies{
		Finalizer: finalizer,
		Delivery:  checkoutsvc.NewDeliverer(c.Media, c.Products, sink, log),
		Balances:  c.Balances,
		Releaser:  c.Inventory,
		Discounts: discountRepo,
		Alerter:   c.Alerter,
		Sink:      sink,
		Events:    pub,
		Logger:    log,
	})

	gw := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.Payments.APIURL,
		APIKey:          cfg.Payments.APIKey,
		EstimateTimeout: cfg.Payments.EstimateTimeout,
		PaymentTimeout:  cfg.Payments.PaymentTimeout,
	}, httpclient.New(cfg.Payments.PaymentTimeout))

	c.Payments = paymentsvc.NewService(paymentsvc.Config{
		Fiat:         cfg.Shop.Currency,
		WebhookURL:   cfg.Payments.WebhookURL,
		MinDeposit:   cfg.Shop.MinDeposit,
		PendingTTL:   cfg.Payments.PendingTTL,
		PendingGrace: cfg.Payments.PendingGrace,
	}, paymentsvc.Dependencies{
		Gateway:      gw,
		Deposits:     depositRepo,
		Rate:         ratesvc.NewLimiter(redrepo.NewRateRepo(redisClient), cfg.Payments.InvoicesPer10Min),
		Balances:     c.Balances,
		Checkout:     c.Checkout,
		Reservations: c.Inventory,
		Sender:       sink,
		Alerter:      c.Alerter,
		Events:       pub,
		Logger:       log,
	})

	c.Intake = intakesvc.NewService(c.Products, auditRepo, tx, c.Media, pub, log)

	return c, nil
}

// newMediaService mirrors uploads to S3 when configured and otherwise keeps
// telegram file ids only.
func newMediaService(cfg config.Config, store mediasvc.Store, bot *tginfra.Bot, log *zap.Logger) *mediasvc.Service {
	if !s3infra.Enabled(cfg.S3) || bot == nil {
		return mediasvc.NewService(store, nil, nil)
	}
	client, err := s3infra.NewClient(cfg.S3)
	if err != nil {
		log.Warn("s3 init failed, media kept as telegram file ids", zap.Error(err))
		return mediasvc.NewService(store, nil, nil)
	}
	return mediasvc.NewService(store, mediasvc.NewS3Storage(client, cfg.S3.Bucket), bot)
}

func (c *Core) PingPostgres(ctx context.Context) error {
	if c.Postgres == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	return c.Postgres.Ping(ctx)
}

func (c *Core) PingRedis(ctx context.Context) error {
	return redrepo.Ping(ctx, c.Redis)
}

func (c *Core) Close() error {
	var errs []error
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	return errors.Join(errs...)
}
