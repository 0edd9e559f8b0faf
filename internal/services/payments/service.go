package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/rules"
	"github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	"github.com/goblin987/ultramaxgoodbot/internal/pkg/validate"
	pgrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/postgres"
	"github.com/goblin987/ultramaxgoodbot/internal/services/checkout"
	"github.com/goblin987/ultramaxgoodbot/internal/services/events"
	"github.com/goblin987/ultramaxgoodbot/internal/services/gateway"
	"github.com/goblin987/ultramaxgoodbot/internal/services/inventory"
	"github.com/goblin987/ultramaxgoodbot/internal/services/metrics"
	"github.com/goblin987/ultramaxgoodbot/internal/services/notify"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

const expireBatch = 100

var (
	ErrValidation      = errors.New("validation error")
	ErrNotOwner        = errors.New("payment belongs to another user")
	ErrNotCancellable  = errors.New("payment is already processed or cancelled")
	ErrDependenciesNil = errors.New("payments dependencies are not configured")
)

type Gateway interface {
	Configured() bool
	Estimate(ctx context.Context, amount decimal.Decimal, fiat, payCurrency string) (decimal.Decimal, error)
	MinAmount(ctx context.Context, payCurrency string) (decimal.Decimal, error)
	CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.Payment, error)
}

type DepositStore interface {
	Create(ctx context.Context, d model.PendingDeposit) error
	Get(ctx context.Context, paymentID string) (model.PendingDeposit, error)
	Claim(ctx context.Context, paymentID string, from, to enums.DepositStatus) (model.PendingDeposit, error)
	SetStatus(ctx context.Context, paymentID string, status enums.DepositStatus) error
	OpenForUser(ctx context.Context, userID int64) (model.PendingDeposit, error)
	ExpireStale(ctx context.Context, cutoff time.Time, limit int) ([]model.PendingDeposit, error)
	FailStuck(ctx context.Context, cutoff time.Time, limit int) ([]model.PendingDeposit, error)
}

type RateGate interface {
	AllowInvoice(ctx context.Context, userID int64) (time.Duration, bool, error)
}

type Crediter interface {
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, reason enums.CreditReason, note string) (model.BalanceChange, error)
}

type PurchaseFinalizer interface {
	FinalizeCrypto(ctx context.Context, deposit model.PendingDeposit) (checkout.Result, error)
}

type ReservationHolder interface {
	inventory.Releaser
	Hold(ctx context.Context, userID int64, snapshot model.BasketSnapshot, until time.Time) error
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) error
}

type Config struct {
	Fiat         string
	WebhookURL   string
	MinDeposit   decimal.Decimal
	PendingTTL   time.Duration
	PendingGrace time.Duration
}

type Dependencies struct {
	Gateway      Gateway
	Deposits     DepositStore
	Rate         RateGate
	Balances     Crediter
	Checkout     PurchaseFinalizer
	Reservations ReservationHolder
	Sender       Sender
	Alerter      notify.Alerter
	Events       events.Publisher
	Logger       *zap.Logger
}

type Service struct {
	cfg  Config
	deps Dependencies
	log  *zap.Logger
	now  func() time.Time
}

// InvoiceRequest asks for a gateway invoice. Amount is the fiat target,
// already discount adjusted for purchases.
type InvoiceRequest struct {
	UserID       int64
	Amount       decimal.Decimal
	PayCurrency  string
	IsPurchase   bool
	Snapshot     model.BasketSnapshot
	DiscountCode string
}

type Invoice struct {
	PaymentID    string
	PayAddress   string
	PayAmount    decimal.Decimal
	PayCurrency  string
	TargetAmount decimal.Decimal
	ExpiresAt    time.Time
	IsPurchase   bool
}

// Reconciliation describes what a gateway notification did.
type Reconciliation struct {
	Outcome   string
	PaymentID string
	UserID    int64
	Credited  decimal.Decimal
}

const (
	OutcomeIgnored     = "ignored"
	OutcomeCommitted   = "committed"
	OutcomeCredited    = "credited"
	OutcomeUnderpaid   = "underpaid"
	OutcomeFailed      = "failed"
	OutcomeFinalizeErr = "finalize_failed"
)

func NewService(cfg Config, deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if cfg.Fiat == "" {
		cfg.Fiat = "EUR"
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 2 * time.Hour
	}
	cfg.WebhookURL = strings.TrimRight(strings.TrimSpace(cfg.WebhookURL), "/")
	return &Service{cfg: cfg, deps: deps, log: deps.Logger, now: time.Now}
}

// CreateInvoice converts the fiat target, checks the gateway minimum, opens
// the payment and records it as a pending deposit. On any *Error the
// reservation stays with the caller.
func (s *Service) CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	inv, err := s.createInvoice(ctx, req)
	if err != nil {
		kind := "other"
		if perr, ok := AsError(err); ok {
			kind = string(perr.Kind)
		}
		metrics.InvoiceFailures.WithLabelValues(kind).Inc()
		s.log.Warn("create invoice failed",
			zap.Int64("user_id", req.UserID),
			zap.String("currency", req.PayCurrency),
			zap.Bool("purchase", req.IsPurchase),
			zap.Error(err),
		)
		return Invoice{}, err
	}
	return inv, nil
}

func (s *Service) createInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	currency := strings.ToLower(strings.TrimSpace(req.PayCurrency))
	d := s.deps
	if d.Gateway == nil || d.Deposits == nil || !d.Gateway.Configured() || s.cfg.WebhookURL == "" {
		return Invoice{}, newError(KindMisconfigured, currency, nil)
	}
	if req.UserID <= 0 || !validate.Ticker(currency) || !req.Amount.IsPositive() {
		return Invoice{}, newError(KindValidation, currency, ErrValidation)
	}
	if req.IsPurchase && len(req.Snapshot) == 0 {
		return Invoice{}, newError(KindValidation, currency, checkout.ErrEmptySnapshot)
	}
	if !req.IsPurchase && s.cfg.MinDeposit.IsPositive() && req.Amount.LessThan(s.cfg.MinDeposit) {
		e := newError(KindDepositTooLow, currency, nil)
		e.MinAmount = s.cfg.MinDeposit
		return Invoice{}, e
	}

	// An invoice past its expiry no longer blocks; the sweeper closes it.
	if open, err := d.Deposits.OpenForUser(ctx, req.UserID); err == nil && open.ExpiresAt.After(s.now()) {
		e := newError(KindOpenInvoice, currency, nil)
		e.Err = fmt.Errorf("payment %s is still pending", open.PaymentID)
		return Invoice{}, e
	} else if err != nil && !errors.Is(err, pgrepo.ErrDepositNotFound) {
		return Invoice{}, newError(KindPersistence, currency, err)
	}

	if d.Rate != nil {
		retry, ok, err := d.Rate.AllowInvoice(ctx, req.UserID)
		switch {
		case err != nil:
			s.log.Warn("invoice rate check failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		case !ok:
			e := newError(KindRateLimited, currency, nil)
			e.RetryAfter = retry
			return Invoice{}, e
		}
	}

	estimate, err := d.Gateway.Estimate(ctx, req.Amount, s.cfg.Fiat, currency)
	if err != nil {
		if gateway.KindOf(err) == gateway.KindCurrencyUnsupported {
			return Invoice{}, newError(KindCurrencyUnsupported, currency, err)
		}
		return Invoice{}, newError(KindEstimateFailed, currency, err)
	}

	minimum, err := d.Gateway.MinAmount(ctx, currency)
	if err != nil {
		return Invoice{}, newError(KindMinAmountUnavailable, currency, err)
	}

	if req.IsPurchase && estimate.LessThan(minimum) {
		e := newError(KindAmountTooLow, currency, nil)
		e.MinAmount = minimum
		e.BasketTotal = req.Amount
		e.CryptoAmount = estimate
		return Invoice{}, e
	}

	// A refill below the gateway minimum is raised to it; the fiat target
	// follows at the estimate's rate.
	target := req.Amount
	if estimate.LessThan(minimum) {
		target = rules.FiatEquivalent(req.Amount, estimate, minimum)
		s.log.Info("refill raised to gateway minimum",
			zap.Int64("user_id", req.UserID),
			zap.String("requested", req.Amount.String()),
			zap.String("target", target.String()),
			zap.String("min_amount", minimum.String()),
		)
	}

	orderID := OrderID(req.UserID, req.IsPurchase, s.now())
	payment, err := d.Gateway.CreatePayment(ctx, gateway.PaymentRequest{
		PriceAmount:      target,
		PriceCurrency:    strings.ToLower(s.cfg.Fiat),
		PayCurrency:      currency,
		IPNCallbackURL:   s.cfg.WebhookURL + "/webhook",
		OrderID:          orderID,
		OrderDescription: orderDescription(req),
	})
	if err != nil {
		e := newError(paymentKind(err), currency, err)
		if e.Kind == KindAmountTooLow {
			e.MinAmount = minimum
			e.BasketTotal = req.Amount
			e.CryptoAmount = estimate
		}
		return Invoice{}, e
	}

	expiresAt := payment.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(s.cfg.PendingTTL)
	}
	deposit := model.PendingDeposit{
		PaymentID:      payment.PaymentID,
		UserID:         req.UserID,
		Currency:       currency,
		TargetAmount:   target,
		ExpectedCrypto: payment.PayAmount,
		IsPurchase:     req.IsPurchase,
		Snapshot:       req.Snapshot,
		DiscountCode:   req.DiscountCode,
		Status:         enums.DepositStatusPending,
		ExpiresAt:      expiresAt.UTC(),
	}
	if err := d.Deposits.Create(ctx, deposit); err != nil {
		return Invoice{}, newError(KindPersistence, currency, err)
	}

	if req.IsPurchase && d.Reservations != nil {
		if err := d.Reservations.Hold(ctx, req.UserID, req.Snapshot, expiresAt.Add(s.cfg.PendingGrace)); err != nil {
			s.log.Warn("extend reservation for invoice failed", zap.String("payment_id", payment.PaymentID), zap.Error(err))
		}
	}

	purpose := "refill"
	if req.IsPurchase {
		purpose = "purchase"
	}
	metrics.InvoicesCreated.WithLabelValues(purpose).Inc()
	events.Emit(ctx, d.Events, s.log, events.Event{
		Type:       events.TypeInvoiceCreated,
		UserID:     req.UserID,
		PaymentID:  payment.PaymentID,
		Amount:     target,
		ProductIDs: req.Snapshot.ProductIDs(),
		Reason:     purpose,
	})
	s.log.Info("invoice created",
		zap.Int64("user_id", req.UserID),
		zap.String("payment_id", payment.PaymentID),
		zap.String("order_id", orderID),
		zap.String("target", target.String()),
		zap.String("pay_amount", payment.PayAmount.String()),
		zap.String("currency", currency),
	)

	return Invoice{
		PaymentID:    payment.PaymentID,
		PayAddress:   payment.PayAddress,
		PayAmount:    payment.PayAmount,
		PayCurrency:  payment.PayCurrency,
		TargetAmount: target,
		ExpiresAt:    expiresAt,
		IsPurchase:   req.IsPurchase,
	}, nil
}

// OpenPurchase returns the user's pending purchase invoice. One past its
// expiry still counts until the sweeper closes it, because a late payment
// can still settle it.
func (s *Service) OpenPurchase(ctx context.Context, userID int64) (model.PendingDeposit, bool, error) {
	if s.deps.Deposits == nil {
		return model.PendingDeposit{}, false, ErrDependenciesNil
	}
	open, err := s.deps.Deposits.OpenForUser(ctx, userID)
	if errors.Is(err, pgrepo.ErrDepositNotFound) {
		return model.PendingDeposit{}, false, nil
	}
	if err != nil {
		return model.PendingDeposit{}, false, fmt.Errorf("find open invoice: %w", err)
	}
	return open, open.IsPurchase, nil
}

// Cancel closes the user's own pending invoice and releases its basket. A
// webhook arriving afterwards finds nothing to claim.
func (s *Service) Cancel(ctx context.Context, userID int64, paymentID string) error {
	if s.deps.Deposits == nil {
		return ErrDependenciesNil
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		open, err := s.deps.Deposits.OpenForUser(ctx, userID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrDepositNotFound) {
				return ErrNotCancellable
			}
			return fmt.Errorf("find open invoice: %w", err)
		}
		paymentID = open.PaymentID
	}

	current, err := s.deps.Deposits.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrDepositNotFound) {
			return ErrNotCancellable
		}
		return fmt.Errorf("get invoice: %w", err)
	}
	if current.UserID != userID {
		return ErrNotOwner
	}

	deposit, ok, err := s.claim(ctx, paymentID, enums.DepositStatusReleased)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}
	s.release(ctx, deposit, inventory.TriggerCancel)
	s.log.Info("invoice cancelled by user", zap.Int64("user_id", userID), zap.String("payment_id", paymentID))
	return nil
}

// HandleIPN routes a verified gateway notification.
func (s *Service) HandleIPN(ctx context.Context, ipn gateway.IPN) (Reconciliation, error) {
	switch ipn.Outcome() {
	case gateway.OutcomeConfirmed:
		paid := ipn.ActuallyPaid
		if paid.IsPositive() && ipn.PayAmount.IsPositive() && paid.LessThan(ipn.PayAmount) {
			return s.HandleUnderpaid(ctx, ipn.ID(), paid)
		}
		return s.HandleConfirmed(ctx, ipn.ID(), paid)
	case gateway.OutcomePartiallyPaid:
		return s.HandleUnderpaid(ctx, ipn.ID(), ipn.ActuallyPaid)
	case gateway.OutcomeFailed:
		return s.HandleFailed(ctx, ipn.ID())
	default:
		s.log.Debug("ipn status ignored", zap.String("payment_id", ipn.ID()), zap.String("status", ipn.PaymentStatus))
		return s.count(Reconciliation{Outcome: OutcomeIgnored, PaymentID: ipn.ID()}), nil
	}
}

// HandleConfirmed settles a fully paid invoice. A zero paid amount means the
// gateway did not report it and the expected amount is assumed.
func (s *Service) HandleConfirmed(ctx context.Context, paymentID string, paid decimal.Decimal) (Reconciliation, error) {
	deposit, ok, err := s.claim(ctx, paymentID, enums.DepositStatusFinalizing)
	if err != nil || !ok {
		return s.count(Reconciliation{Outcome: OutcomeIgnored, PaymentID: paymentID}), err
	}
	// Settlement must not stop halfway when the webhook request goes away.
	ctx = context.WithoutCancel(ctx)
	if !paid.IsPositive() {
		paid = deposit.ExpectedCrypto
	}
	rec := Reconciliation{PaymentID: paymentID, UserID: deposit.UserID, Credited: decimal.Zero}

	final := enums.DepositStatusCredited
	if deposit.IsPurchase {
		rec.Outcome = OutcomeCommitted
		final = enums.DepositStatusCommitted
		if s.deps.Checkout == nil {
			err = ErrDependenciesNil
		} else {
			_, err = s.deps.Checkout.FinalizeCrypto(ctx, deposit)
		}
		if err != nil {
			rec.Outcome = OutcomeFinalizeErr
			final = enums.DepositStatusFailed
		}
	} else {
		rec.Outcome = OutcomeCredited
		if err = s.credit(ctx, deposit, deposit.TargetAmount, enums.CreditReasonRefill); err != nil {
			rec.Outcome = OutcomeFailed
			final = enums.DepositStatusFailed
		} else {
			rec.Credited = deposit.TargetAmount
		}
	}

	if excess := rules.Overpayment(deposit.TargetAmount, deposit.ExpectedCrypto, paid); excess.IsPositive() {
		if cerr := s.credit(ctx, deposit, excess, enums.CreditReasonOverpayment); cerr == nil {
			rec.Credited = rec.Credited.Add(excess)
		}
	}

	s.finish(ctx, deposit, final)
	if err != nil {
		return s.count(rec), fmt.Errorf("settle payment %s: %w", paymentID, err)
	}
	return s.count(rec), nil
}

// HandleUnderpaid credits what arrived at the invoice's own rate. A purchase
// is not fulfilled and its basket is always released.
func (s *Service) HandleUnderpaid(ctx context.Context, paymentID string, paid decimal.Decimal) (Reconciliation, error) {
	deposit, ok, err := s.claim(ctx, paymentID, enums.DepositStatusFinalizing)
	if err != nil || !ok {
		return s.count(Reconciliation{Outcome: OutcomeIgnored, PaymentID: paymentID}), err
	}
	ctx = context.WithoutCancel(ctx)
	rec := Reconciliation{Outcome: OutcomeUnderpaid, PaymentID: paymentID, UserID: deposit.UserID, Credited: decimal.Zero}

	final := enums.DepositStatusCredited
	reason := enums.CreditReasonRefill
	if deposit.IsPurchase {
		s.release(ctx, deposit, inventory.TriggerUnderpaid)
		final = enums.DepositStatusReleased
		reason = enums.CreditReasonUnderpayment
	}

	amount := rules.FiatEquivalent(deposit.TargetAmount, deposit.ExpectedCrypto, paid)
	if amount.IsPositive() {
		if err = s.credit(ctx, deposit, amount, reason); err != nil {
			final = enums.DepositStatusFailed
		} else {
			rec.Credited = amount
		}
	} else {
		s.tell(ctx, deposit.UserID, ui.PaymentExpired)
	}

	s.finish(ctx, deposit, final)
	if err != nil {
		return s.count(rec), fmt.Errorf("credit underpayment %s: %w", paymentID, err)
	}
	return s.count(rec), nil
}

// HandleFailed closes an invoice the gateway reports as failed or expired.
func (s *Service) HandleFailed(ctx context.Context, paymentID string) (Reconciliation, error) {
	deposit, ok, err := s.claim(ctx, paymentID, enums.DepositStatusFailed)
	if err != nil || !ok {
		return s.count(Reconciliation{Outcome: OutcomeIgnored, PaymentID: paymentID}), err
	}
	s.release(ctx, deposit, inventory.TriggerPaymentFailed)
	s.tell(ctx, deposit.UserID, ui.PaymentExpired)
	return s.count(Reconciliation{Outcome: OutcomeFailed, PaymentID: paymentID, UserID: deposit.UserID}), nil
}

// ExpireStale closes invoices that outlived their expiry plus grace and
// releases their baskets.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s.deps.Deposits == nil {
		return 0, ErrDependenciesNil
	}
	cutoff := s.now().UTC().Add(-s.cfg.PendingGrace)
	expired, err := s.deps.Deposits.ExpireStale(ctx, cutoff, expireBatch)
	if err != nil {
		return 0, fmt.Errorf("expire stale invoices: %w", err)
	}
	for _, d := range expired {
		s.release(ctx, d, inventory.TriggerExpired)
		s.tell(ctx, d.UserID, ui.PaymentExpired)
		s.log.Info("invoice expired", zap.Int64("user_id", d.UserID), zap.String("payment_id", d.PaymentID))
	}
	return len(expired), nil
}

// FlagStuck fails deposits that stayed in finalizing longer than the grace
// window, e.g. after a crash between claim and settlement, and alerts for
// each. Nothing is credited or refunded automatically.
func (s *Service) FlagStuck(ctx context.Context) (int, error) {
	if s.deps.Deposits == nil {
		return 0, ErrDependenciesNil
	}
	cutoff := s.now().UTC().Add(-s.cfg.PendingGrace)
	stuck, err := s.deps.Deposits.FailStuck(ctx, cutoff, expireBatch)
	if err != nil {
		return 0, fmt.Errorf("flag stuck payments: %w", err)
	}
	for _, d := range stuck {
		s.alert(ctx, "payment stuck in finalization",
			zap.Int64("user_id", d.UserID),
			zap.String("payment_id", d.PaymentID),
			zap.Bool("purchase", d.IsPurchase),
			zap.String("target", d.TargetAmount.String()),
		)
	}
	return len(stuck), nil
}

// claim moves a pending deposit to the given status. ok is false when the
// deposit is unknown or was already claimed, e.g. by a cancel.
func (s *Service) claim(ctx context.Context, paymentID string, to enums.DepositStatus) (model.PendingDeposit, bool, error) {
	if s.deps.Deposits == nil {
		return model.PendingDeposit{}, false, ErrDependenciesNil
	}
	deposit, err := s.deps.Deposits.Claim(ctx, paymentID, enums.DepositStatusPending, to)
	switch {
	case err == nil:
		return deposit, true, nil
	case errors.Is(err, pgrepo.ErrDepositNotFound):
		s.log.Warn("notification for unknown payment", zap.String("payment_id", paymentID))
		return model.PendingDeposit{}, false, nil
	case errors.Is(err, pgrepo.ErrDepositNotClaimable):
		s.log.Info("payment already processed or cancelled", zap.String("payment_id", paymentID), zap.String("target_status", string(to)))
		if to == enums.DepositStatusFinalizing {
			s.flagClosed(ctx, paymentID)
		}
		return model.PendingDeposit{}, false, nil
	default:
		return model.PendingDeposit{}, false, fmt.Errorf("claim payment %s: %w", paymentID, err)
	}
}

// flagClosed alerts when money arrives for an invoice that was already
// released, or one whose settlement never finished within the grace window.
// Nothing is credited automatically.
func (s *Service) flagClosed(ctx context.Context, paymentID string) {
	d, err := s.deps.Deposits.Get(ctx, paymentID)
	if err != nil {
		return
	}
	text := ""
	switch d.Status {
	case enums.DepositStatusReleased, enums.DepositStatusExpired:
		text = "payment received for a closed invoice"
	case enums.DepositStatusFinalizing:
		if d.UpdatedAt.Before(s.now().UTC().Add(-s.cfg.PendingGrace)) {
			text = "payment received for an invoice stuck in finalization"
		}
	}
	if text == "" {
		return
	}
	s.alert(ctx, text,
		zap.Int64("user_id", d.UserID),
		zap.String("payment_id", paymentID),
		zap.String("status", string(d.Status)),
		zap.String("target", d.TargetAmount.String()),
	)
}

func (s *Service) credit(ctx context.Context, d model.PendingDeposit, amount decimal.Decimal, reason enums.CreditReason) error {
	if s.deps.Balances == nil {
		return ErrDependenciesNil
	}
	if _, err := s.deps.Balances.Credit(ctx, d.UserID, amount, reason, "payment "+d.PaymentID); err != nil {
		s.alert(ctx, "balance credit for confirmed payment failed",
			zap.Int64("user_id", d.UserID),
			zap.String("payment_id", d.PaymentID),
			zap.String("amount", amount.String()),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) release(ctx context.Context, d model.PendingDeposit, trigger string) {
	if !d.IsPurchase || len(d.Snapshot) == 0 || s.deps.Reservations == nil {
		return
	}
	if _, err := s.deps.Reservations.Release(ctx, d.UserID, d.Snapshot, trigger); err != nil {
		s.log.Error("release invoice basket failed", zap.Int64("user_id", d.UserID), zap.String("payment_id", d.PaymentID), zap.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, d model.PendingDeposit, status enums.DepositStatus) {
	if err := s.deps.Deposits.SetStatus(ctx, d.PaymentID, status); err != nil {
		s.log.Error("record final payment status failed",
			zap.String("payment_id", d.PaymentID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (s *Service) tell(ctx context.Context, userID int64, text string) {
	if s.deps.Sender == nil {
		return
	}
	if err := s.deps.Sender.SendText(ctx, userID, text, ui.BackToProfile()); err != nil {
		s.log.Warn("send payment message failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Service) alert(ctx context.Context, text string, fields ...zap.Field) {
	if s.deps.Alerter == nil {
		s.log.Error(text, append(fields, zap.String("severity", "critical"))...)
		return
	}
	s.deps.Alerter.Alert(ctx, text, fields...)
}

func (s *Service) count(rec Reconciliation) Reconciliation {
	metrics.Reconciliations.WithLabelValues(rec.Outcome).Inc()
	return rec
}

// OrderID builds USER{id}_{PURCHASE|REFILL}_{unix}_{6 hex}.
func OrderID(userID int64, purchase bool, now time.Time) string {
	kind := "REFILL"
	if purchase {
		kind = "PURCHASE"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("USER%d_%s_%d_%s", userID, kind, now.Unix(), suffix)
}

func orderDescription(req InvoiceRequest) string {
	if req.IsPurchase {
		return fmt.Sprintf("Basket purchase (%d items) for user %d", len(req.Snapshot), req.UserID)
	}
	return fmt.Sprintf("Balance top-up for user %d", req.UserID)
}

func paymentKind(err error) Kind {
	switch gateway.KindOf(err) {
	case gateway.KindAPIKeyInvalid:
		return KindAPIKeyInvalid
	case gateway.KindAmountTooLow:
		return KindAmountTooLow
	case gateway.KindInvalidResponse:
		return KindInvalidResponse
	case gateway.KindMisconfigured:
		return KindMisconfigured
	default:
		return KindGatewayUnavailable
	}
}
