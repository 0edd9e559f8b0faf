package botapp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/rules"
	tginfra "github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	"github.com/goblin987/ultramaxgoodbot/internal/services/checkout"
	"github.com/goblin987/ultramaxgoodbot/internal/services/flow"
	"github.com/goblin987/ultramaxgoodbot/internal/services/intake"
	"github.com/goblin987/ultramaxgoodbot/internal/services/inventory"
	paymentsvc "github.com/goblin987/ultramaxgoodbot/internal/services/payments"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

const shopListLimit = 20

var errAmountInvalid = errors.New("invalid amount")

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard tginfra.Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Users interface {
	GetOrCreate(ctx context.Context, userID int64, username string) (model.User, error)
}

type Catalog interface {
	ListAvailable(ctx context.Context, city, district, productType string, now time.Time, limit int) ([]model.Product, error)
}

type Baskets interface {
	AddToBasket(ctx context.Context, userID, productID int64) (model.Product, error)
	Basket(ctx context.Context, userID int64) ([]model.Product, error)
	Snapshot(ctx context.Context, userID int64) (model.BasketSnapshot, error)
	Release(ctx context.Context, userID int64, snapshot model.BasketSnapshot, trigger string) (int64, error)
	RemoveFromBasket(ctx context.Context, userID, productID int64) error
}

type Checkout interface {
	Quote(ctx context.Context, userID int64, snapshot model.BasketSnapshot, code string) (checkout.Quote, error)
	PayWithBalance(ctx context.Context, userID int64, snapshot model.BasketSnapshot, code string) (checkout.Result, error)
}

type Payments interface {
	CreateInvoice(ctx context.Context, req paymentsvc.InvoiceRequest) (paymentsvc.Invoice, error)
	OpenPurchase(ctx context.Context, userID int64) (model.PendingDeposit, bool, error)
	Cancel(ctx context.Context, userID int64, paymentID string) error
}

type Intake interface {
	AddDrop(ctx context.Context, workerID int64, scope intake.Scope, line string, media []intake.Attachment) (int64, error)
	AddLines(ctx context.Context, workerID int64, scope intake.Scope, text string) (int, []string, error)
}

type RouterDeps struct {
	Messenger Messenger
	Users     Users
	Catalog   Catalog
	Baskets   Baskets
	Checkout  Checkout
	Payments  Payments
	Intake    Intake
	Flow      *flow.Machine
	IsWorker  func(userID int64) bool
	Logger    *zap.Logger
}

// Router turns telegram updates into shop operations. Per-user
// conversation state lives in the flow machine, so any replica may handle
// any update.
type Router struct {
	deps       RouterDeps
	fiat       string
	minDeposit decimal.Decimal
	log        *zap.Logger
	now        func() time.Time
}

func NewRouter(deps RouterDeps, fiat string, minDeposit decimal.Decimal) *Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.IsWorker == nil {
		deps.IsWorker = func(int64) bool { return false }
	}
	return &Router{deps: deps, fiat: fiat, minDeposit: minDeposit, log: log, now: time.Now}
}

func (r *Router) HandleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "start":
		if _, err := r.deps.Users.GetOrCreate(ctx, update.UserID, update.Username); err != nil {
			return fmt.Errorf("register user: %w", err)
		}
		if err := r.deps.Flow.Reset(ctx, update.UserID); err != nil {
			return fmt.Errorf("reset flow: %w", err)
		}
		return r.send(ctx, update.ChatID, ui.Welcome, ui.MainMenu())
	case "shop":
		return r.showShop(ctx, update.ChatID, update.Args)
	case "balance", "profile":
		return r.showProfile(ctx, update.ChatID, update.UserID, update.Username)
	case "basket":
		return r.showBasket(ctx, update.ChatID, update.UserID)
	case "refill":
		return r.startRefill(ctx, update.ChatID, update.UserID)
	case "worker":
		return r.startWorker(ctx, update.ChatID, update.UserID, update.Args)
	case "cancel":
		return r.cancelPayment(ctx, update.ChatID, update.UserID)
	case "code":
		return r.applyCode(ctx, update.ChatID, update.UserID, update.Args)
	default:
		return nil
	}
}

func (r *Router) HandleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	data := strings.TrimSpace(update.Data)

	switch {
	case strings.HasPrefix(data, ui.CallbackAddPrefix):
		return r.addToBasket(ctx, update)
	case strings.HasPrefix(data, ui.CallbackRemovePrefix):
		id, ok := ui.ParseID(data, ui.CallbackRemovePrefix)
		if !ok {
			return r.answer(ctx, update.CallbackID, ui.UnknownAction)
		}
		if err := r.answer(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		if err := r.deps.Baskets.RemoveFromBasket(ctx, update.UserID, id); err != nil {
			return fmt.Errorf("remove from basket: %w", err)
		}
		return r.showBasket(ctx, update.ChatID, update.UserID)
	case strings.HasPrefix(data, ui.CallbackRefillCrypto):
		if err := r.answer(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		return r.openInvoice(ctx, update.ChatID, update.UserID, false, strings.TrimPrefix(data, ui.CallbackRefillCrypto))
	case strings.HasPrefix(data, ui.CallbackBasketCrypto):
		if err := r.answer(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		return r.openInvoice(ctx, update.ChatID, update.UserID, true, strings.TrimPrefix(data, ui.CallbackBasketCrypto))
	case strings.HasPrefix(data, ui.CallbackWorkerBulk):
		return r.startBulk(ctx, update)
	}

	if err := r.answer(ctx, update.CallbackID, ""); err != nil {
		return err
	}
	switch data {
	case ui.CallbackViewBasket:
		return r.showBasket(ctx, update.ChatID, update.UserID)
	case ui.CallbackProfile:
		return r.showProfile(ctx, update.ChatID, update.UserID, update.Username)
	case ui.CallbackRefill:
		return r.startRefill(ctx, update.ChatID, update.UserID)
	case ui.CallbackPayCrypto:
		return r.chooseBasketCrypto(ctx, update.ChatID, update.UserID)
	case ui.CallbackPayBalance:
		return r.payWithBalance(ctx, update.ChatID, update.UserID, update.Username)
	case ui.CallbackCancelCrypto:
		return r.cancelPayment(ctx, update.ChatID, update.UserID)
	case ui.CallbackWorkerBulkDone:
		if err := r.reset(ctx, update.UserID); err != nil {
			return err
		}
		return r.send(ctx, update.ChatID, ui.WorkerBulkFinished, nil)
	default:
		r.log.Debug("unknown callback", zap.String("data", data), zap.Int64("user_id", update.UserID))
		return nil
	}
}

func (r *Router) HandleText(ctx context.Context, update tginfra.TextUpdate) error {
	fc, err := r.deps.Flow.Current(ctx, update.UserID)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}

	switch fc.State {
	case enums.FlowAwaitingRefillAmount:
		return r.acceptRefillAmount(ctx, update.ChatID, update.UserID, update.Text)
	case enums.FlowWorkerBulkPrice:
		if !r.deps.IsWorker(update.UserID) {
			return r.reset(ctx, update.UserID)
		}
		added, failed, err := r.deps.Intake.AddLines(ctx, update.UserID, scopeOf(fc), update.Text)
		if err != nil {
			r.log.Error("bulk drop intake failed", zap.Int64("worker_id", update.UserID), zap.Error(err))
			return r.send(ctx, update.ChatID, ui.GenericError, ui.WorkerBulkDone())
		}
		return r.send(ctx, update.ChatID, ui.DropsAdded(added, failed), ui.WorkerBulkDone())
	default:
		return nil
	}
}

// HandleMedia adds one drop per captioned photo or video while a worker is
// in bulk mode. Media outside that mode is ignored.
func (r *Router) HandleMedia(ctx context.Context, update tginfra.MediaUpdate) error {
	if !r.deps.IsWorker(update.UserID) {
		return nil
	}
	fc, err := r.deps.Flow.Current(ctx, update.UserID)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}
	if fc.State != enums.FlowWorkerBulkPrice {
		return nil
	}

	media := []intake.Attachment{{Kind: update.Kind, FileID: update.FileID}}
	if _, err := r.deps.Intake.AddDrop(ctx, update.UserID, scopeOf(fc), update.Caption, media); err != nil {
		var perr *intake.ParseError
		if errors.As(err, &perr) {
			return r.send(ctx, update.ChatID, ui.DropsAdded(0, []string{update.Caption}), ui.WorkerBulkDone())
		}
		r.log.Error("drop intake failed", zap.Int64("worker_id", update.UserID), zap.Error(err))
		return r.send(ctx, update.ChatID, ui.GenericError, ui.WorkerBulkDone())
	}
	return r.send(ctx, update.ChatID, ui.DropsAdded(1, nil), ui.WorkerBulkDone())
}

func (r *Router) showShop(ctx context.Context, chatID int64, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return r.send(ctx, chatID, ui.ShopUsage, nil)
	}
	products, err := r.deps.Catalog.ListAvailable(ctx, fields[0], fields[1], fields[2], r.now(), shopListLimit)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		return r.send(ctx, chatID, ui.NoProducts, nil)
	}
	for _, p := range products {
		if err := r.send(ctx, chatID, ui.ProductLine(p, r.fiat), ui.ProductButton(p.ID, p.Size)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) showProfile(ctx context.Context, chatID, userID int64, username string) error {
	user, err := r.deps.Users.GetOrCreate(ctx, userID, username)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	return r.send(ctx, chatID, ui.Balance(user, r.fiat), ui.MainMenu())
}

func (r *Router) showBasket(ctx context.Context, chatID, userID int64) error {
	items, err := r.deps.Baskets.Basket(ctx, userID)
	if err != nil {
		return fmt.Errorf("load basket: %w", err)
	}
	if len(items) == 0 {
		return r.send(ctx, chatID, ui.BasketEmpty, ui.MainMenu())
	}
	ids := make([]int64, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	return r.send(ctx, chatID, ui.BasketView(items, r.fiat), ui.BasketActions(ids))
}

func (r *Router) addToBasket(ctx context.Context, update tginfra.CallbackUpdate) error {
	id, ok := ui.ParseID(update.Data, ui.CallbackAddPrefix)
	if !ok {
		return r.answer(ctx, update.CallbackID, ui.UnknownAction)
	}
	if _, err := r.deps.Users.GetOrCreate(ctx, update.UserID, update.Username); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if _, err := r.deps.Baskets.AddToBasket(ctx, update.UserID, id); err != nil {
		if errors.Is(err, inventory.ErrUnavailable) {
			return r.answer(ctx, update.CallbackID, ui.ItemUnavailable)
		}
		return fmt.Errorf("add to basket: %w", err)
	}
	return r.answer(ctx, update.CallbackID, ui.AddedToBasket)
}

func (r *Router) startRefill(ctx context.Context, chatID, userID int64) error {
	if _, err := r.enter(ctx, userID, enums.FlowAwaitingRefillAmount, nil); err != nil {
		return err
	}
	return r.send(ctx, chatID, ui.EnterRefillAmount, ui.BackToProfile())
}

func (r *Router) acceptRefillAmount(ctx context.Context, chatID, userID int64, text string) error {
	amount, err := parseAmount(text)
	if err != nil {
		return r.send(ctx, chatID, ui.ErrInvalidRefillAmount, ui.BackToProfile())
	}
	if amount.LessThan(r.minDeposit) {
		return r.send(ctx, chatID, ui.ErrMinDeposit(r.minDeposit, r.fiat), ui.BackToProfile())
	}
	if _, err := r.enter(ctx, userID, enums.FlowChoosingCrypto, func(fc *flow.Context) {
		fc.RefillAmount = amount
		fc.IsPurchase = false
	}); err != nil {
		return err
	}
	return r.send(ctx, chatID, ui.ChooseCrypto, ui.AssetPicker(ui.CallbackRefillCrypto, ui.BackToProfile()))
}

func (r *Router) chooseBasketCrypto(ctx context.Context, chatID, userID int64) error {
	snapshot, err := r.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return r.send(ctx, chatID, ui.BasketEmpty, ui.MainMenu())
	}
	if _, err := r.enter(ctx, userID, enums.FlowChoosingCrypto, func(fc *flow.Context) {
		fc.IsPurchase = true
	}); err != nil {
		return err
	}
	return r.send(ctx, chatID, ui.ChooseCrypto, ui.AssetPicker(ui.CallbackBasketCrypto, ui.BackToBasket()))
}

// openInvoice creates a gateway invoice for the refill amount in the flow or
// for the priced basket. A purchase that fails before a pending deposit
// exists gives the basket back here; nothing else would.
func (r *Router) openInvoice(ctx context.Context, chatID, userID int64, purchase bool, asset string) error {
	fc, err := r.deps.Flow.Current(ctx, userID)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}
	if fc.State != enums.FlowChoosingCrypto || fc.IsPurchase != purchase {
		return r.send(ctx, chatID, ui.GenericError, ui.MainMenu())
	}

	back := ui.BackToProfile()
	req := paymentsvc.InvoiceRequest{
		UserID:      userID,
		Amount:      fc.RefillAmount,
		PayCurrency: asset,
		IsPurchase:  purchase,
	}
	if purchase {
		back = ui.BackToBasket()
		snapshot, err := r.snapshot(ctx, userID)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			_ = r.reset(ctx, userID)
			return r.send(ctx, chatID, ui.BasketEmpty, ui.MainMenu())
		}
		quote, err := r.quote(ctx, userID, snapshot, fc.DiscountCode)
		if errors.Is(err, checkout.ErrInvalidDiscountCode) {
			_ = r.reset(ctx, userID)
			return r.send(ctx, chatID, ui.DiscountCodeInvalid, back)
		}
		if err != nil {
			return err
		}
		req.Amount = quote.Total
		req.Snapshot = snapshot
		req.DiscountCode = quote.DiscountCode
	}

	if err := r.send(ctx, chatID, ui.PreparingInvoice, nil); err != nil {
		return err
	}

	invoice, err := r.deps.Payments.CreateInvoice(ctx, req)
	if err != nil {
		if perr, ok := paymentsvc.AsError(err); ok && purchase && perr.ReleasesReservation() {
			if _, relErr := r.deps.Baskets.Release(ctx, userID, req.Snapshot, inventory.TriggerPaymentFailed); relErr != nil {
				r.log.Error("release basket after invoice failure", zap.Int64("user_id", userID), zap.Error(relErr))
			}
		}
		r.log.Warn("invoice not created", zap.Int64("user_id", userID), zap.Bool("purchase", purchase), zap.Error(err))
		if resetErr := r.reset(ctx, userID); resetErr != nil {
			r.log.Warn("reset flow after invoice failure", zap.Int64("user_id", userID), zap.Error(resetErr))
		}
		return r.send(ctx, chatID, invoiceErrorText(err, r.fiat, purchase), back)
	}

	if _, err := r.enter(ctx, userID, enums.FlowAwaitingPayment, func(fc *flow.Context) {
		fc.PendingPaymentID = invoice.PaymentID
		if purchase {
			// The code now travels with the invoice.
			fc.DiscountCode = ""
		}
	}); err != nil {
		r.log.Warn("save awaiting payment flow", zap.Int64("user_id", userID), zap.Error(err))
	}

	text := ui.Invoice{
		PaymentID:  invoice.PaymentID,
		Address:    invoice.PayAddress,
		PayAmount:  invoice.PayAmount,
		PayAsset:   invoice.PayCurrency,
		FiatAmount: invoice.TargetAmount,
		Fiat:       r.fiat,
		ExpiresAt:  invoice.ExpiresAt,
		IsPurchase: invoice.IsPurchase,
	}.Text()
	return r.send(ctx, chatID, text, ui.CancelPayment())
}

func (r *Router) cancelPayment(ctx context.Context, chatID, userID int64) error {
	fc, err := r.deps.Flow.Current(ctx, userID)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}
	if err := r.deps.Payments.Cancel(ctx, userID, fc.PendingPaymentID); err != nil {
		r.log.Info("payment not cancelled", zap.Int64("user_id", userID), zap.String("payment_id", fc.PendingPaymentID), zap.Error(err))
		_ = r.reset(ctx, userID)
		return r.send(ctx, chatID, ui.PaymentCancelFailed, ui.MainMenu())
	}
	if err := r.reset(ctx, userID); err != nil {
		return err
	}
	return r.send(ctx, chatID, ui.PaymentCancelled, ui.MainMenu())
}

// payWithBalance charges the basket to the balance. A basket that is still
// held by an open crypto invoice is refused, since the invoice may be paid
// later and would then find nothing to deliver.
func (r *Router) payWithBalance(ctx context.Context, chatID, userID int64, username string) error {
	snapshot, err := r.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return r.send(ctx, chatID, ui.BasketEmpty, ui.MainMenu())
	}
	open, pending, err := r.deps.Payments.OpenPurchase(ctx, userID)
	if err != nil {
		return fmt.Errorf("check open invoice: %w", err)
	}
	if pending {
		r.log.Info("balance checkout refused, crypto invoice open", zap.Int64("user_id", userID), zap.String("payment_id", open.PaymentID))
		return r.send(ctx, chatID, ui.ErrPendingCryptoInvoice, ui.CancelPayment())
	}
	fc, err := r.deps.Flow.Current(ctx, userID)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}
	quote, err := r.quote(ctx, userID, snapshot, fc.DiscountCode)
	if errors.Is(err, checkout.ErrInvalidDiscountCode) {
		return r.send(ctx, chatID, ui.DiscountCodeInvalid, ui.BackToBasket())
	}
	if err != nil {
		return err
	}

	if _, err := r.deps.Checkout.PayWithBalance(ctx, userID, snapshot, fc.DiscountCode); err != nil {
		text := checkoutErrorText(err)
		if text == "" {
			user, userErr := r.deps.Users.GetOrCreate(ctx, userID, username)
			if userErr != nil {
				return fmt.Errorf("load user: %w", userErr)
			}
			text = ui.InsufficientBalance(user.Balance, quote.Total, r.fiat)
		}
		r.log.Info("balance checkout failed", zap.Int64("user_id", userID), zap.Error(err))
		return r.send(ctx, chatID, text, ui.MainMenu())
	}
	if fc.DiscountCode != "" {
		if _, err := r.deps.Flow.SetDiscountCode(ctx, userID, ""); err != nil {
			r.log.Warn("clear used discount code", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	// Delivery and the receipt are sent by the checkout service.
	return nil
}

// applyCode checks a discount code against the current basket and keeps it
// for checkout. "/code off" removes it.
func (r *Router) applyCode(ctx context.Context, chatID, userID int64, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return r.send(ctx, chatID, ui.DiscountCodeUsage, nil)
	}
	code := fields[0]
	if strings.EqualFold(code, "off") {
		if _, err := r.deps.Flow.SetDiscountCode(ctx, userID, ""); err != nil {
			return fmt.Errorf("clear discount code: %w", err)
		}
		return r.send(ctx, chatID, ui.DiscountCodeRemoved, ui.MainMenu())
	}

	snapshot, err := r.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return r.send(ctx, chatID, ui.BasketEmpty, ui.MainMenu())
	}
	// A mistyped code leaves a previously stored one in place.
	quote, err := r.deps.Checkout.Quote(ctx, userID, snapshot, code)
	if errors.Is(err, checkout.ErrInvalidDiscountCode) {
		return r.send(ctx, chatID, ui.DiscountCodeInvalid, ui.BackToBasket())
	}
	if err != nil {
		return fmt.Errorf("quote basket: %w", err)
	}
	if _, err := r.deps.Flow.SetDiscountCode(ctx, userID, quote.DiscountCode); err != nil {
		return fmt.Errorf("save discount code: %w", err)
	}
	return r.send(ctx, chatID, ui.DiscountCodeApplied(quote.DiscountCode, quote.CodePercent, quote.Total, r.fiat), ui.BackToBasket())
}

func (r *Router) startWorker(ctx context.Context, chatID, userID int64, args string) error {
	if !r.deps.IsWorker(userID) {
		return r.send(ctx, chatID, ui.WorkerForbidden, nil)
	}
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return r.send(ctx, chatID, ui.WorkerUsage, nil)
	}
	data, err := ui.WorkerBulkData(fields[0], fields[1], fields[2])
	if err != nil {
		return r.send(ctx, chatID, ui.WorkerUsage, nil)
	}
	return r.send(ctx, chatID, ui.WorkerBulkPrompt, ui.WorkerBulkStart(data, strings.Join(fields, " / ")))
}

func (r *Router) startBulk(ctx context.Context, update tginfra.CallbackUpdate) error {
	if !r.deps.IsWorker(update.UserID) {
		return r.answer(ctx, update.CallbackID, ui.WorkerForbidden)
	}
	city, district, productType, ok := ui.ParseWorkerBulkData(update.Data)
	if !ok {
		return r.answer(ctx, update.CallbackID, ui.UnknownAction)
	}
	if err := r.answer(ctx, update.CallbackID, ""); err != nil {
		return err
	}
	if _, err := r.enter(ctx, update.UserID, enums.FlowWorkerBulkPrice, func(fc *flow.Context) {
		fc.DropCity = city
		fc.DropDistrict = district
		fc.DropType = productType
	}); err != nil {
		return err
	}
	return r.send(ctx, update.ChatID, ui.WorkerBulkPrompt, ui.WorkerBulkDone())
}

// snapshot reads the basket; an empty basket is not an error here.
func (r *Router) snapshot(ctx context.Context, userID int64) (model.BasketSnapshot, error) {
	snapshot, err := r.deps.Baskets.Snapshot(ctx, userID)
	if errors.Is(err, inventory.ErrEmptyBasket) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot basket: %w", err)
	}
	return snapshot, nil
}

// quote prices the basket. An invalid stored code is forgotten so the
// next attempt goes through at full price.
func (r *Router) quote(ctx context.Context, userID int64, snapshot model.BasketSnapshot, code string) (checkout.Quote, error) {
	quote, err := r.deps.Checkout.Quote(ctx, userID, snapshot, code)
	if errors.Is(err, checkout.ErrInvalidDiscountCode) {
		if _, clearErr := r.deps.Flow.SetDiscountCode(ctx, userID, ""); clearErr != nil {
			r.log.Warn("clear invalid discount code", zap.Int64("user_id", userID), zap.Error(clearErr))
		}
		return checkout.Quote{}, err
	}
	if err != nil {
		return checkout.Quote{}, fmt.Errorf("quote basket: %w", err)
	}
	return quote, nil
}

// enter moves the user to next, abandoning whatever step they were in when
// the direct transition is not allowed. The discount code survives.
func (r *Router) enter(ctx context.Context, userID int64, next enums.FlowState, mutate func(*flow.Context)) (flow.Context, error) {
	fc, err := r.deps.Flow.Transition(ctx, userID, next, mutate)
	if errors.Is(err, flow.ErrInvalidTransition) {
		if _, err := r.deps.Flow.Transition(ctx, userID, enums.FlowIdle, nil); err != nil {
			return flow.Context{}, fmt.Errorf("reset flow: %w", err)
		}
		fc, err = r.deps.Flow.Transition(ctx, userID, next, mutate)
	}
	if err != nil {
		return flow.Context{}, fmt.Errorf("transition flow to %s: %w", next, err)
	}
	return fc, nil
}

// reset returns the user to idle, keeping a stored discount code.
func (r *Router) reset(ctx context.Context, userID int64) error {
	if _, err := r.deps.Flow.Transition(ctx, userID, enums.FlowIdle, nil); err != nil {
		return fmt.Errorf("reset flow: %w", err)
	}
	return nil
}

func (r *Router) send(ctx context.Context, chatID int64, text string, kb tginfra.Keyboard) error {
	if r.deps.Messenger == nil {
		return nil
	}
	return r.deps.Messenger.SendText(ctx, chatID, text, kb)
}

func (r *Router) answer(ctx context.Context, callbackID, text string) error {
	if r.deps.Messenger == nil {
		return nil
	}
	return r.deps.Messenger.AnswerCallback(ctx, callbackID, text)
}

func scopeOf(fc flow.Context) intake.Scope {
	return intake.Scope{City: fc.DropCity, District: fc.DropDistrict, Type: fc.DropType}
}

var (
	amountSuffix  = regexp.MustCompile(`(?i)\s*(€|eur)$`)
	amountPattern = regexp.MustCompile(`^\d+(?:\.\d{1,2})?$`)
)

// parseAmount reads a user typed fiat amount such as "25", "12,50" or
// "10 EUR".
func parseAmount(text string) (decimal.Decimal, error) {
	raw := amountSuffix.ReplaceAllString(strings.TrimSpace(text), "")
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if !amountPattern.MatchString(raw) {
		return decimal.Zero, errAmountInvalid
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errAmountInvalid
	}
	amount = rules.FloorCents(amount)
	if !amount.IsPositive() {
		return decimal.Zero, errAmountInvalid
	}
	return amount, nil
}
