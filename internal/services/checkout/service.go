package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	pgrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/postgres"
	"github.com/goblin987/ultramaxgoodbot/internal/services/balance"
	"github.com/goblin987/ultramaxgoodbot/internal/services/events"
	"github.com/goblin987/ultramaxgoodbot/internal/services/inventory"
	"github.com/goblin987/ultramaxgoodbot/internal/services/metrics"
	"github.com/goblin987/ultramaxgoodbot/internal/services/notify"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

const (
	methodBalance = "balance"
	methodCrypto  = "crypto"
)

var (
	ErrInvalidDiscountCode = errors.New("discount code is invalid or expired")
	ErrPurchaseRefunded    = errors.New("purchase failed and the balance was refunded")
	ErrRefundFailed        = errors.New("purchase failed and the refund failed")
)

type DiscountLookup interface {
	ResellerPercents(ctx context.Context, userID int64, productTypes []string) (map[string]decimal.Decimal, error)
	CodePercent(ctx context.Context, code string, now time.Time) (decimal.Decimal, error)
}

type BalanceLedger interface {
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, note string) (model.BalanceChange, error)
	Refund(ctx context.Context, userID int64, amount decimal.Decimal, note string) (model.BalanceChange, error)
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, reason enums.CreditReason, note string) (model.BalanceChange, error)
}

type PurchaseFinalizer interface {
	Finalize(ctx context.Context, order Order) (Result, error)
}

type Delivery interface {
	Deliver(ctx context.Context, userID int64, result Result, snapshot model.BasketSnapshot)
}

type Dependencies struct {
	Finalizer PurchaseFinalizer
	Delivery  Delivery
	Balances  BalanceLedger
	Releaser  inventory.Releaser
	Discounts DiscountLookup
	Alerter   notify.Alerter
	Sink      notify.Sink
	Events    events.Publisher
	Logger    *zap.Logger
}

type Service struct {
	deps Dependencies
	log  *zap.Logger
	now  func() time.Time
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Service{deps: deps, log: deps.Logger, now: time.Now}
}

// Quote prices the snapshot with the buyer's reseller discounts and an
// optional discount code.
func (s *Service) Quote(ctx context.Context, userID int64, snapshot model.BasketSnapshot, code string) (Quote, error) {
	if len(snapshot) == 0 {
		return Quote{}, ErrEmptySnapshot
	}
	percents, err := s.resellerPercents(ctx, userID, snapshot)
	if err != nil {
		return Quote{}, err
	}

	code = strings.TrimSpace(code)
	codePercent := decimal.Zero
	if code != "" {
		if s.deps.Discounts == nil {
			return Quote{}, ErrDependenciesNil
		}
		codePercent, err = s.deps.Discounts.CodePercent(ctx, code, s.now().UTC())
		if err != nil {
			if errors.Is(err, pgrepo.ErrDiscountCodeInvalid) {
				return Quote{}, ErrInvalidDiscountCode
			}
			return Quote{}, fmt.Errorf("resolve discount code: %w", err)
		}
	}
	return priceSnapshot(snapshot, percents, code, codePercent), nil
}

// PayWithBalance charges the quote to the balance and finalizes the basket.
// A failed finalization is refunded in its own transaction; only a failed
// refund raises an operator alert.
func (s *Service) PayWithBalance(ctx context.Context, userID int64, snapshot model.BasketSnapshot, code string) (Result, error) {
	if s.deps.Finalizer == nil || s.deps.Balances == nil || s.deps.Releaser == nil {
		return Result{}, ErrDependenciesNil
	}
	sess := newSession()
	log := s.log.With(zap.Int64("user_id", userID), zap.String("method", methodBalance))

	quote, err := s.Quote(ctx, userID, snapshot, code)
	if err != nil {
		return Result{}, err
	}
	if err := sess.advance(enums.CheckoutPaymentPending); err != nil {
		return Result{}, err
	}

	if _, err := s.deps.Balances.Debit(ctx, userID, quote.Total, describe(snapshot)); err != nil {
		s.release(ctx, log, userID, snapshot, inventory.TriggerPaymentFailed)
		_ = sess.advance(enums.CheckoutReleased)
		if errors.Is(err, balance.ErrInsufficientBalance) {
			return Result{}, balance.ErrInsufficientBalance
		}
		return Result{}, fmt.Errorf("debit balance: %w", err)
	}

	if err := sess.advance(enums.CheckoutFinalizing); err != nil {
		return Result{}, err
	}
	result, err := s.deps.Finalizer.Finalize(ctx, Order{
		UserID:           userID,
		Snapshot:         snapshot,
		DiscountCode:     quote.DiscountCode,
		ResellerPercents: quote.Percents,
	})
	if err != nil {
		metrics.Finalizations.WithLabelValues(methodBalance, "failed").Inc()
		// Compensation outlives the request context.
		bg := context.WithoutCancel(ctx)
		s.release(bg, log, userID, snapshot, inventory.TriggerPaymentFailed)
		_ = sess.advance(enums.CheckoutReleased)

		if _, refundErr := s.deps.Balances.Refund(bg, userID, quote.Total, "finalization failed"); refundErr != nil {
			s.alert(bg, "balance refund failed after purchase finalization error",
				zap.Int64("user_id", userID),
				zap.String("amount", quote.Total.String()),
				zap.Int64s("product_ids", snapshot.ProductIDs()),
				zap.NamedError("finalize_error", err),
				zap.NamedError("refund_error", refundErr),
			)
			return Result{}, fmt.Errorf("%w: %w", ErrRefundFailed, err)
		}
		log.Warn("purchase finalization failed, balance refunded", zap.String("amount", quote.Total.String()), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrPurchaseRefunded, err)
	}
	if err := sess.advance(enums.CheckoutCommitted); err != nil {
		return Result{}, err
	}

	bg := context.WithoutCancel(ctx)
	if share := unfulfilledShare(quote.Total, result, quote.Percents); share.IsPositive() {
		if _, err := s.deps.Balances.Refund(bg, userID, share, "unavailable basket items"); err != nil {
			s.alert(bg, "partial refund failed for skipped basket items",
				zap.Int64("user_id", userID),
				zap.String("amount", share.String()),
				zap.Error(err),
			)
		}
	}
	s.committed(bg, userID, "", methodBalance, result, snapshot)
	return result, nil
}

// FinalizeCrypto turns a confirmed gateway payment into purchases. Nothing is
// refunded on failure: the operator is alerted with the payment and basket.
func (s *Service) FinalizeCrypto(ctx context.Context, deposit model.PendingDeposit) (Result, error) {
	log := s.log.With(zap.Int64("user_id", deposit.UserID), zap.String("payment_id", deposit.PaymentID), zap.String("method", methodCrypto))
	if len(deposit.Snapshot) == 0 {
		s.alert(ctx, "crypto payment confirmed but basket snapshot is missing",
			zap.Int64("user_id", deposit.UserID),
			zap.String("payment_id", deposit.PaymentID),
		)
		s.tell(ctx, log, deposit.UserID, ui.PurchaseFailedSupport)
		return Result{}, ErrEmptySnapshot
	}
	if s.deps.Finalizer == nil {
		return Result{}, ErrDependenciesNil
	}

	sess := &session{state: enums.CheckoutPaymentPending}
	if err := sess.advance(enums.CheckoutFinalizing); err != nil {
		return Result{}, err
	}

	percents, err := s.resellerPercents(ctx, deposit.UserID, deposit.Snapshot)
	if err == nil {
		var result Result
		result, err = s.deps.Finalizer.Finalize(ctx, Order{
			UserID:           deposit.UserID,
			Snapshot:         deposit.Snapshot,
			DiscountCode:     deposit.DiscountCode,
			ResellerPercents: percents,
		})
		if err == nil {
			if err := sess.advance(enums.CheckoutCommitted); err != nil {
				return Result{}, err
			}
			if share := unfulfilledShare(deposit.TargetAmount, result, percents); share.IsPositive() && s.deps.Balances != nil {
				if _, err := s.deps.Balances.Credit(ctx, deposit.UserID, share, enums.CreditReasonRefund, "unavailable items of payment "+deposit.PaymentID); err != nil {
					s.alert(ctx, "credit for skipped basket items failed",
						zap.Int64("user_id", deposit.UserID),
						zap.String("payment_id", deposit.PaymentID),
						zap.String("amount", share.String()),
						zap.Error(err),
					)
				}
			}
			s.committed(ctx, deposit.UserID, deposit.PaymentID, methodCrypto, result, deposit.Snapshot)
			return result, nil
		}
	}

	_ = sess.advance(enums.CheckoutReleased)
	metrics.Finalizations.WithLabelValues(methodCrypto, "failed").Inc()
	s.alert(ctx, "crypto payment confirmed but purchase finalization failed",
		zap.Int64("user_id", deposit.UserID),
		zap.String("payment_id", deposit.PaymentID),
		zap.String("amount", deposit.TargetAmount.String()),
		zap.String("basket", describe(deposit.Snapshot)),
		zap.Error(err),
	)
	s.tell(ctx, log, deposit.UserID, ui.PurchaseFailedSupport)
	return Result{}, err
}

func (s *Service) committed(ctx context.Context, userID int64, paymentID, method string, result Result, snapshot model.BasketSnapshot) {
	metrics.Finalizations.WithLabelValues(method, "committed").Inc()
	metrics.ItemsSold.Add(float64(len(result.Purchases)))
	events.Emit(ctx, s.deps.Events, s.log, events.Event{
		Type:       events.TypePurchaseCommitted,
		UserID:     userID,
		PaymentID:  paymentID,
		Amount:     result.Total(),
		ProductIDs: result.ProductIDs(),
		Reason:     method,
	})
	if s.deps.Delivery != nil {
		s.deps.Delivery.Deliver(ctx, userID, result, snapshot)
	}
}

func (s *Service) resellerPercents(ctx context.Context, userID int64, snapshot model.BasketSnapshot) (map[string]decimal.Decimal, error) {
	if s.deps.Discounts == nil {
		return map[string]decimal.Decimal{}, nil
	}
	percents, err := s.deps.Discounts.ResellerPercents(ctx, userID, snapshot.Types())
	if err != nil {
		return nil, fmt.Errorf("resolve reseller discounts: %w", err)
	}
	return percents, nil
}

func (s *Service) release(ctx context.Context, log *zap.Logger, userID int64, snapshot model.BasketSnapshot, trigger string) {
	if _, err := s.deps.Releaser.Release(ctx, userID, snapshot, trigger); err != nil {
		log.Error("release reservation failed", zap.Int64s("product_ids", snapshot.ProductIDs()), zap.Error(err))
	}
}

func (s *Service) alert(ctx context.Context, text string, fields ...zap.Field) {
	if s.deps.Alerter == nil {
		s.log.Error(text, append(fields, zap.String("severity", "critical"))...)
		return
	}
	s.deps.Alerter.Alert(ctx, text, fields...)
}

func (s *Service) tell(ctx context.Context, log *zap.Logger, userID int64, text string) {
	if s.deps.Sink == nil {
		return
	}
	if err := s.deps.Sink.SendText(ctx, userID, text, ui.BackToProfile()); err != nil {
		log.Warn("send purchase failure message failed", zap.Error(err))
	}
}

func describe(snapshot model.BasketSnapshot) string {
	parts := make([]string, 0, len(snapshot))
	for _, item := range snapshot {
		parts = append(parts, fmt.Sprintf("#%d %s %s %s", item.ProductID, item.Name, item.Size, item.Price.StringFixed(2)))
	}
	return strings.Join(parts, ", ")
}
