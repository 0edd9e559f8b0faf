package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	pgrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/postgres"
	"github.com/goblin987/ultramaxgoodbot/internal/services/events"
	"github.com/goblin987/ultramaxgoodbot/internal/services/metrics"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrUnavailable     = errors.New("product is no longer available")
	ErrEmptyBasket     = errors.New("basket is empty")
	ErrDependenciesNil = errors.New("inventory dependencies are not configured")
)

// Release triggers, used as metric labels.
const (
	TriggerCancel        = "cancel"
	TriggerPaymentFailed = "payment_failed"
	TriggerUnderpaid     = "underpaid"
	TriggerExpired       = "expired"
	TriggerBasketTimeout = "basket_timeout"
	TriggerUser          = "user"
)

type ProductStore interface {
	Reserve(ctx context.Context, productID, userID int64, until, now time.Time) (model.Product, error)
	ExtendReservation(ctx context.Context, userID int64, productIDs []int64, until time.Time) (int64, error)
	Release(ctx context.Context, userID int64, productIDs []int64) (int64, error)
	ReleaseExpired(ctx context.Context, now time.Time, limit int) ([]pgrepo.Reservation, error)
}

type BasketStore interface {
	Add(ctx context.Context, userID, productID int64) error
	Items(ctx context.Context, userID int64) ([]model.Product, error)
	Remove(ctx context.Context, userID int64, productIDs []int64) error
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

// Releaser gives reserved products of a snapshot back to stock.
type Releaser interface {
	Release(ctx context.Context, userID int64, snapshot model.BasketSnapshot, trigger string) (int64, error)
}

type Service struct {
	products      ProductStore
	baskets       BasketStore
	tx            TxRunner
	events        events.Publisher
	log           *zap.Logger
	basketTimeout time.Duration
	now           func() time.Time
}

func NewService(products ProductStore, baskets BasketStore, tx TxRunner, pub events.Publisher, basketTimeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if basketTimeout <= 0 {
		basketTimeout = 15 * time.Minute
	}
	return &Service{
		products:      products,
		baskets:       baskets,
		tx:            tx,
		events:        pub,
		log:           log,
		basketTimeout: basketTimeout,
		now:           time.Now,
	}
}

// AddToBasket reserves the product for the user and records it in the basket
// in one transaction.
func (s *Service) AddToBasket(ctx context.Context, userID, productID int64) (model.Product, error) {
	if userID <= 0 || productID <= 0 {
		return model.Product{}, ErrValidation
	}
	if s.products == nil || s.baskets == nil || s.tx == nil {
		return model.Product{}, ErrDependenciesNil
	}

	now := s.now().UTC()
	var reserved model.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.products.Reserve(ctx, productID, userID, now.Add(s.basketTimeout), now)
		if err != nil {
			return err
		}
		if err := s.baskets.Add(ctx, userID, productID); err != nil {
			return err
		}
		reserved = p
		return nil
	})
	if err != nil {
		if errors.Is(err, pgrepo.ErrProductUnavailable) {
			return model.Product{}, ErrUnavailable
		}
		return model.Product{}, fmt.Errorf("add to basket: %w", err)
	}
	return reserved, nil
}

// Basket lists the products the user still holds. Rows whose reservation
// moved to someone else or whose product was sold are dropped on the way.
func (s *Service) Basket(ctx context.Context, userID int64) ([]model.Product, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.baskets == nil {
		return nil, ErrDependenciesNil
	}

	items, err := s.baskets.Items(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}

	held := make([]model.Product, 0, len(items))
	var stale []int64
	for _, p := range items {
		if p.Available > 0 && p.ReservedBy != nil && *p.ReservedBy == userID {
			held = append(held, p)
			continue
		}
		stale = append(stale, p.ID)
	}
	if len(stale) > 0 {
		if err := s.baskets.Remove(ctx, userID, stale); err != nil {
			s.log.Warn("drop stale basket rows failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return held, nil
}

// Snapshot captures the basket as the immutable input of a payment.
func (s *Service) Snapshot(ctx context.Context, userID int64) (model.BasketSnapshot, error) {
	items, err := s.Basket(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyBasket
	}
	snapshot := make(model.BasketSnapshot, 0, len(items))
	for _, p := range items {
		snapshot = append(snapshot, model.SnapshotItem(p))
	}
	return snapshot, nil
}

// Hold keeps the snapshot's reservations alive until the invoice expires.
func (s *Service) Hold(ctx context.Context, userID int64, snapshot model.BasketSnapshot, until time.Time) error {
	if len(snapshot) == 0 {
		return nil
	}
	if s.products == nil {
		return ErrDependenciesNil
	}
	if _, err := s.products.ExtendReservation(ctx, userID, snapshot.ProductIDs(), until); err != nil {
		return fmt.Errorf("hold reservation: %w", err)
	}
	return nil
}

// Release returns the snapshot's products to stock. Products that are already
// released, sold or owned by another user are skipped, so repeated calls are
// harmless.
func (s *Service) Release(ctx context.Context, userID int64, snapshot model.BasketSnapshot, trigger string) (int64, error) {
	if len(snapshot) == 0 {
		return 0, nil
	}
	if s.products == nil || s.baskets == nil {
		return 0, ErrDependenciesNil
	}

	ids := snapshot.ProductIDs()
	n, err := s.products.Release(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("release snapshot: %w", err)
	}
	if err := s.baskets.Remove(ctx, userID, ids); err != nil {
		return n, fmt.Errorf("remove released basket rows: %w", err)
	}

	if n > 0 {
		metrics.ReservationsReleased.WithLabelValues(trigger).Add(float64(n))
		events.Emit(ctx, s.events, s.log, events.Event{
			Type:       events.TypeReservationFreed,
			UserID:     userID,
			ProductIDs: ids,
			Reason:     trigger,
		})
	}
	s.log.Info("reservation released",
		zap.Int64("user_id", userID),
		zap.Int64s("product_ids", ids),
		zap.Int64("released", n),
		zap.String("trigger", trigger),
	)
	return n, nil
}

func (s *Service) RemoveFromBasket(ctx context.Context, userID, productID int64) error {
	if userID <= 0 || productID <= 0 {
		return ErrValidation
	}
	_, err := s.Release(ctx, userID, model.BasketSnapshot{{ProductID: productID}}, TriggerUser)
	return err
}

// SweepExpired releases basket reservations past their deadline. Products
// referenced by an open invoice are left to the invoice expiry.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	if s.products == nil || s.baskets == nil {
		return 0, ErrDependenciesNil
	}

	released, err := s.products.ReleaseExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	byUser := make(map[int64][]int64)
	for _, r := range released {
		byUser[r.UserID] = append(byUser[r.UserID], r.ProductID)
	}
	for userID, ids := range byUser {
		if err := s.baskets.Remove(ctx, userID, ids); err != nil {
			s.log.Warn("remove expired basket rows failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	if len(released) > 0 {
		metrics.ReservationsReleased.WithLabelValues(TriggerBasketTimeout).Add(float64(len(released)))
	}
	return len(released), nil
}
