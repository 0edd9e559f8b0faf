package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/rules"
)

var (
	ErrNothingToFinalize = errors.New("no basket item could be finalized")
	ErrEmptySnapshot     = errors.New("basket snapshot is empty")
	ErrInvalidState      = errors.New("invalid checkout state transition")
	ErrDependenciesNil   = errors.New("checkout dependencies are not configured")
)

type ProductConsumer interface {
	Consume(ctx context.Context, productID, userID int64) (bool, error)
}

type PurchaseWriter interface {
	Insert(ctx context.Context, p model.Purchase) (int64, error)
}

type PurchaseCounter interface {
	IncrementPurchases(ctx context.Context, userID int64, n int) error
}

type BasketClearer interface {
	Clear(ctx context.Context, userID int64) error
}

type CodeUsageCounter interface {
	IncrementUses(ctx context.Context, code string) error
}

type SerializableRunner interface {
	WithinSerializable(ctx context.Context, fn func(context.Context) error) error
}

type FinalizerDeps struct {
	Products  ProductConsumer
	Purchases PurchaseWriter
	Users     PurchaseCounter
	Baskets   BasketClearer
	Codes     CodeUsageCounter
	Tx        SerializableRunner
	Logger    *zap.Logger
}

// Finalizer is the only writer of purchase rows.
type Finalizer struct {
	deps FinalizerDeps
	log  *zap.Logger
	now  func() time.Time
}

// Order is a paid basket waiting to become purchases.
type Order struct {
	UserID           int64
	Snapshot         model.BasketSnapshot
	DiscountCode     string
	ResellerPercents map[string]decimal.Decimal
}

type Result struct {
	Purchases []model.Purchase
	Skipped   []model.BasketItem
}

func (r Result) ProductIDs() []int64 {
	ids := make([]int64, 0, len(r.Purchases))
	for _, p := range r.Purchases {
		ids = append(ids, p.ProductID)
	}
	return ids
}

func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Purchases {
		total = total.Add(p.PricePaid)
	}
	return total
}

func NewFinalizer(deps FinalizerDeps) *Finalizer {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Finalizer{deps: deps, log: log, now: time.Now}
}

// Finalize consumes every still reserved snapshot item and records the
// purchases in one serializable transaction. Items that are gone are skipped;
// when none survive the transaction rolls back with ErrNothingToFinalize.
func (f *Finalizer) Finalize(ctx context.Context, order Order) (Result, error) {
	if len(order.Snapshot) == 0 {
		return Result{}, ErrEmptySnapshot
	}
	d := f.deps
	if d.Products == nil || d.Purchases == nil || d.Users == nil || d.Baskets == nil || d.Tx == nil {
		return Result{}, ErrDependenciesNil
	}

	var result Result
	err := d.Tx.WithinSerializable(ctx, func(ctx context.Context) error {
		// Retries start over with a clean result.
		result = Result{}
		purchasedAt := f.now().UTC()

		for _, item := range order.Snapshot {
			ok, err := d.Products.Consume(ctx, item.ProductID, order.UserID)
			if err != nil {
				return err
			}
			if !ok {
				f.log.Error("snapshot item no longer available",
					zap.Int64("user_id", order.UserID),
					zap.Int64("product_id", item.ProductID),
				)
				result.Skipped = append(result.Skipped, item)
				continue
			}

			purchase := model.Purchase{
				UserID:      order.UserID,
				ProductID:   item.ProductID,
				Name:        item.Name,
				Type:        item.Type,
				Size:        item.Size,
				PricePaid:   rules.PriceAfterDiscount(item.Price, order.ResellerPercents[item.Type]),
				City:        item.City,
				District:    item.District,
				PurchasedAt: purchasedAt,
			}
			id, err := d.Purchases.Insert(ctx, purchase)
			if err != nil {
				return err
			}
			purchase.ID = id
			result.Purchases = append(result.Purchases, purchase)
		}

		if len(result.Purchases) == 0 {
			return ErrNothingToFinalize
		}
		if err := d.Users.IncrementPurchases(ctx, order.UserID, len(result.Purchases)); err != nil {
			return err
		}
		if err := d.Baskets.Clear(ctx, order.UserID); err != nil {
			return err
		}
		if order.DiscountCode != "" && d.Codes != nil {
			if err := d.Codes.IncrementUses(ctx, order.DiscountCode); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNothingToFinalize) {
			return Result{Skipped: result.Skipped}, ErrNothingToFinalize
		}
		return Result{}, fmt.Errorf("finalize purchase: %w", err)
	}

	f.log.Info("purchase finalized",
		zap.Int64("user_id", order.UserID),
		zap.Int("items", len(result.Purchases)),
		zap.Int("skipped", len(result.Skipped)),
		zap.String("total_paid", result.Total().String()),
		zap.String("discount_code", order.DiscountCode),
	)
	return result, nil
}

// session tracks one checkout through its lifecycle.
type session struct {
	state enums.CheckoutState
}

func newSession() *session {
	return &session{state: enums.CheckoutReserved}
}

func (s *session) advance(to enums.CheckoutState) error {
	if !s.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, to)
	}
	s.state = to
	return nil
}
