package botapp

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	tginfra "github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	redrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/redis"
	"github.com/goblin987/ultramaxgoodbot/internal/services/balance"
	"github.com/goblin987/ultramaxgoodbot/internal/services/checkout"
	"github.com/goblin987/ultramaxgoodbot/internal/services/flow"
	"github.com/goblin987/ultramaxgoodbot/internal/services/intake"
	"github.com/goblin987/ultramaxgoodbot/internal/services/inventory"
	paymentsvc "github.com/goblin987/ultramaxgoodbot/internal/services/payments"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

const (
	testUser   int64 = 42
	testChat   int64 = 4200
	testWorker int64 = 7
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type sentMessage struct {
	chatID int64
	text   string
	kb     tginfra.Keyboard
}

type messengerStub struct {
	mu      sync.Mutex
	sent    []sentMessage
	answers []string
}

func (m *messengerStub) SendText(_ context.Context, chatID int64, text string, kb tginfra.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, kb: kb})
	return nil
}

func (m *messengerStub) AnswerCallback(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, text)
	return nil
}

func (m *messengerStub) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].text
}

type usersStub struct {
	balance decimal.Decimal
}

func (u usersStub) GetOrCreate(_ context.Context, userID int64, username string) (model.User, error) {
	return model.User{ID: userID, Username: username, Balance: u.balance}, nil
}

type catalogStub struct {
	products []model.Product
	queried  []string
}

func (c *catalogStub) ListAvailable(_ context.Context, city, district, productType string, _ time.Time, _ int) ([]model.Product, error) {
	c.queried = []string{city, district, productType}
	return c.products, nil
}

type basketsStub struct {
	snapshot    model.BasketSnapshot
	snapshotErr error
	addErr      error
	released    []string
}

func (b *basketsStub) AddToBasket(_ context.Context, _ int64, productID int64) (model.Product, error) {
	if b.addErr != nil {
		return model.Product{}, b.addErr
	}
	return model.Product{ID: productID}, nil
}

func (b *basketsStub) Basket(context.Context, int64) ([]model.Product, error) {
	return nil, nil
}

func (b *basketsStub) Snapshot(context.Context, int64) (model.BasketSnapshot, error) {
	if b.snapshotErr != nil {
		return nil, b.snapshotErr
	}
	return b.snapshot, nil
}

func (b *basketsStub) Release(_ context.Context, _ int64, snapshot model.BasketSnapshot, trigger string) (int64, error) {
	b.released = append(b.released, trigger)
	return int64(len(snapshot)), nil
}

func (b *basketsStub) RemoveFromBasket(context.Context, int64, int64) error {
	return nil
}

type checkoutStub struct {
	total  decimal.Decimal
	payErr error
	codes  map[string]decimal.Decimal
	paid   *[]string
}

func (c checkoutStub) Quote(_ context.Context, _ int64, _ model.BasketSnapshot, code string) (checkout.Quote, error) {
	if code == "" {
		return checkout.Quote{Total: c.total}, nil
	}
	pct, ok := c.codes[code]
	if !ok {
		return checkout.Quote{}, checkout.ErrInvalidDiscountCode
	}
	discount := c.total.Mul(pct).Div(decimal.NewFromInt(100))
	return checkout.Quote{Total: c.total.Sub(discount), CodePercent: pct, CodeDiscount: discount, DiscountCode: code}, nil
}

func (c checkoutStub) PayWithBalance(_ context.Context, _ int64, _ model.BasketSnapshot, code string) (checkout.Result, error) {
	if c.paid != nil {
		*c.paid = append(*c.paid, code)
	}
	return checkout.Result{}, c.payErr
}

type paymentsStub struct {
	createErr error
	cancelErr error
	open      *model.PendingDeposit
	requests  []paymentsvc.InvoiceRequest
	cancelled []string
}

func (p *paymentsStub) OpenPurchase(context.Context, int64) (model.PendingDeposit, bool, error) {
	if p.open == nil {
		return model.PendingDeposit{}, false, nil
	}
	return *p.open, p.open.IsPurchase, nil
}

func (p *paymentsStub) CreateInvoice(_ context.Context, req paymentsvc.InvoiceRequest) (paymentsvc.Invoice, error) {
	p.requests = append(p.requests, req)
	if p.createErr != nil {
		return paymentsvc.Invoice{}, p.createErr
	}
	return paymentsvc.Invoice{
		PaymentID:    "pay-1",
		PayAddress:   "addr",
		PayAmount:    dec("0.0002"),
		PayCurrency:  req.PayCurrency,
		TargetAmount: req.Amount,
		IsPurchase:   req.IsPurchase,
	}, nil
}

func (p *paymentsStub) Cancel(_ context.Context, _ int64, paymentID string) error {
	p.cancelled = append(p.cancelled, paymentID)
	return p.cancelErr
}

type intakeStub struct {
	scopes []intake.Scope
	lines  []string
}

func (i *intakeStub) AddDrop(_ context.Context, _ int64, scope intake.Scope, line string, _ []intake.Attachment) (int64, error) {
	if _, _, err := intake.ParseSizePrice(line); err != nil {
		return 0, err
	}
	i.scopes = append(i.scopes, scope)
	i.lines = append(i.lines, line)
	return 1, nil
}

func (i *intakeStub) AddLines(_ context.Context, _ int64, scope intake.Scope, text string) (int, []string, error) {
	i.scopes = append(i.scopes, scope)
	i.lines = append(i.lines, text)
	return 1, nil, nil
}

type routerFixture struct {
	router   *Router
	msgs     *messengerStub
	catalog  *catalogStub
	baskets  *basketsStub
	payments *paymentsStub
	intake   *intakeStub
	flow     *flow.Machine
}

func newRouterFixture(t *testing.T, users usersStub, co checkoutStub) *routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &routerFixture{
		msgs:     &messengerStub{},
		catalog:  &catalogStub{},
		baskets:  &basketsStub{snapshot: model.BasketSnapshot{{ProductID: 11, Type: "tea", Price: dec("10")}}},
		payments: &paymentsStub{},
		intake:   &intakeStub{},
		flow:     flow.NewMachine(redrepo.NewFlowRepo(client, time.Hour)),
	}
	f.router = NewRouter(RouterDeps{
		Messenger: f.msgs,
		Users:     users,
		Catalog:   f.catalog,
		Baskets:   f.baskets,
		Checkout:  co,
		Payments:  f.payments,
		Intake:    f.intake,
		Flow:      f.flow,
		IsWorker:  func(id int64) bool { return id == testWorker },
	}, "EUR", dec("5"))
	return f
}

func (f *routerFixture) state(t *testing.T, userID int64) flow.Context {
	t.Helper()
	fc, err := f.flow.Current(context.Background(), userID)
	if err != nil {
		t.Fatalf("load flow: %v", err)
	}
	return fc
}

func callback(userID int64, data string) tginfra.CallbackUpdate {
	return tginfra.CallbackUpdate{CallbackID: "cb", ChatID: testChat, UserID: userID, Data: data}
}

func TestRefillFlowOpensInvoice(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	ctx := context.Background()

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "refill"}); err != nil {
		t.Fatalf("refill command: %v", err)
	}
	if got := f.state(t, testUser).State; got != enums.FlowAwaitingRefillAmount {
		t.Fatalf("expected awaiting refill amount, got %s", got)
	}

	if err := f.router.HandleText(ctx, tginfra.TextUpdate{ChatID: testChat, UserID: testUser, Text: "12,5"}); err != nil {
		t.Fatalf("refill amount: %v", err)
	}
	fc := f.state(t, testUser)
	if fc.State != enums.FlowChoosingCrypto || !fc.RefillAmount.Equal(dec("12.5")) {
		t.Fatalf("unexpected flow after amount: %+v", fc)
	}
	if f.msgs.last() != ui.ChooseCrypto {
		t.Fatalf("expected asset picker, got %q", f.msgs.last())
	}

	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackRefillCrypto+"btc")); err != nil {
		t.Fatalf("refill asset: %v", err)
	}
	if len(f.payments.requests) != 1 {
		t.Fatalf("expected one invoice request, got %d", len(f.payments.requests))
	}
	req := f.payments.requests[0]
	if req.IsPurchase || req.PayCurrency != "btc" || !req.Amount.Equal(dec("12.5")) {
		t.Fatalf("unexpected invoice request: %+v", req)
	}
	fc = f.state(t, testUser)
	if fc.State != enums.FlowAwaitingPayment || fc.PendingPaymentID != "pay-1" {
		t.Fatalf("unexpected flow after invoice: %+v", fc)
	}
	if !strings.Contains(f.msgs.last(), "Top-Up Invoice") {
		t.Fatalf("expected invoice text, got %q", f.msgs.last())
	}
}

func TestRefillBelowMinimumKeepsPrompt(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	ctx := context.Background()

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "refill"}); err != nil {
		t.Fatalf("refill command: %v", err)
	}
	if err := f.router.HandleText(ctx, tginfra.TextUpdate{ChatID: testChat, UserID: testUser, Text: "3"}); err != nil {
		t.Fatalf("refill amount: %v", err)
	}
	if f.msgs.last() != ui.ErrMinDeposit(dec("5"), "EUR") {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
	if got := f.state(t, testUser).State; got != enums.FlowAwaitingRefillAmount {
		t.Fatalf("expected to stay in refill prompt, got %s", got)
	}
}

func TestPurchaseInvoiceFailureReleasesBasket(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{total: dec("10")})
	f.payments.createErr = &paymentsvc.Error{
		Kind:         paymentsvc.KindAmountTooLow,
		Currency:     "btc",
		MinAmount:    dec("0.0002"),
		BasketTotal:  dec("10"),
		CryptoAmount: dec("0.0001"),
	}
	ctx := context.Background()

	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackPayCrypto)); err != nil {
		t.Fatalf("pay crypto: %v", err)
	}
	if fc := f.state(t, testUser); fc.State != enums.FlowChoosingCrypto || !fc.IsPurchase {
		t.Fatalf("unexpected flow: %+v", fc)
	}
	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackBasketCrypto+"btc")); err != nil {
		t.Fatalf("basket asset: %v", err)
	}

	req := f.payments.requests[0]
	if !req.IsPurchase || !req.Amount.Equal(dec("10")) || len(req.Snapshot) != 1 {
		t.Fatalf("unexpected purchase request: %+v", req)
	}
	if len(f.baskets.released) != 1 || f.baskets.released[0] != inventory.TriggerPaymentFailed {
		t.Fatalf("expected basket release, got %v", f.baskets.released)
	}
	want := ui.ErrAmountTooLow(dec("10"), "EUR", "btc", dec("0.0001"), dec("0.0002"))
	if f.msgs.last() != want {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
	if got := f.state(t, testUser).State; got != enums.FlowIdle {
		t.Fatalf("expected idle flow, got %s", got)
	}
}

func TestRateLimitedPurchaseKeepsBasket(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{total: dec("10")})
	f.payments.createErr = &paymentsvc.Error{Kind: paymentsvc.KindRateLimited, RetryAfter: 4 * time.Minute}
	ctx := context.Background()

	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackPayCrypto)); err != nil {
		t.Fatalf("pay crypto: %v", err)
	}
	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackBasketCrypto+"ltc")); err != nil {
		t.Fatalf("basket asset: %v", err)
	}
	if len(f.baskets.released) != 0 {
		t.Fatalf("rate limited basket must stay reserved, released %v", f.baskets.released)
	}
	if f.msgs.last() != ui.ErrRateLimited(4*time.Minute) {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestCancelUsesPendingPayment(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	ctx := context.Background()

	if _, err := f.flow.Transition(ctx, testUser, enums.FlowChoosingCrypto, nil); err != nil {
		t.Fatalf("seed flow: %v", err)
	}
	if _, err := f.flow.Transition(ctx, testUser, enums.FlowAwaitingPayment, func(fc *flow.Context) {
		fc.PendingPaymentID = "pay-9"
	}); err != nil {
		t.Fatalf("seed flow: %v", err)
	}

	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackCancelCrypto)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(f.payments.cancelled) != 1 || f.payments.cancelled[0] != "pay-9" {
		t.Fatalf("unexpected cancel calls %v", f.payments.cancelled)
	}
	if f.msgs.last() != ui.PaymentCancelled {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
	if got := f.state(t, testUser).State; got != enums.FlowIdle {
		t.Fatalf("expected idle flow, got %s", got)
	}
}

func TestCancelFailureTellsUser(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	f.payments.cancelErr = paymentsvc.ErrNotCancellable

	if err := f.router.HandleCommand(context.Background(), tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "cancel"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.msgs.last() != ui.PaymentCancelFailed {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestPayWithBalanceInsufficient(t *testing.T) {
	f := newRouterFixture(t, usersStub{balance: dec("3")}, checkoutStub{total: dec("10"), payErr: balance.ErrInsufficientBalance})

	if err := f.router.HandleCallback(context.Background(), callback(testUser, ui.CallbackPayBalance)); err != nil {
		t.Fatalf("pay balance: %v", err)
	}
	if want := ui.InsufficientBalance(dec("3"), dec("10"), "EUR"); f.msgs.last() != want {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestPayWithBalanceRefusedWhileCryptoInvoiceOpen(t *testing.T) {
	var paid []string
	f := newRouterFixture(t, usersStub{balance: dec("50")}, checkoutStub{total: dec("10"), paid: &paid})
	f.payments.open = &model.PendingDeposit{PaymentID: "pay-7", UserID: testUser, IsPurchase: true, Status: enums.DepositStatusPending}

	if err := f.router.HandleCallback(context.Background(), callback(testUser, ui.CallbackPayBalance)); err != nil {
		t.Fatalf("pay balance: %v", err)
	}
	if len(paid) != 0 {
		t.Fatalf("basket held by an invoice must not be charged, got %v", paid)
	}
	if f.msgs.last() != ui.ErrPendingCryptoInvoice {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
	if kb := f.msgs.sent[len(f.msgs.sent)-1].kb; kb[0][0].Data != ui.CallbackCancelCrypto {
		t.Fatalf("expected a cancel button, got %+v", kb)
	}
}

func TestPayWithBalanceAllowedWithOpenRefill(t *testing.T) {
	var paid []string
	f := newRouterFixture(t, usersStub{balance: dec("50")}, checkoutStub{total: dec("10"), paid: &paid})
	f.payments.open = &model.PendingDeposit{PaymentID: "pay-8", UserID: testUser, Status: enums.DepositStatusPending}

	if err := f.router.HandleCallback(context.Background(), callback(testUser, ui.CallbackPayBalance)); err != nil {
		t.Fatalf("pay balance: %v", err)
	}
	if len(paid) != 1 {
		t.Fatalf("a refill invoice holds no basket, expected a charge, got %v", paid)
	}
}

func TestDiscountCodeCarriedIntoPurchaseInvoice(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{total: dec("10"), codes: map[string]decimal.Decimal{"SPRING10": dec("10")}})
	ctx := context.Background()

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "code", Args: "SPRING10"}); err != nil {
		t.Fatalf("code: %v", err)
	}
	if want := ui.DiscountCodeApplied("SPRING10", dec("10"), dec("9"), "EUR"); f.msgs.last() != want {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
	if got := f.state(t, testUser).DiscountCode; got != "SPRING10" {
		t.Fatalf("code not stored, got %q", got)
	}

	// An abandoned refill prompt must not lose the code.
	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "refill"}); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackPayCrypto)); err != nil {
		t.Fatalf("pay crypto: %v", err)
	}
	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackBasketCrypto+"btc")); err != nil {
		t.Fatalf("basket asset: %v", err)
	}

	if len(f.payments.requests) != 1 {
		t.Fatalf("expected one invoice request, got %d", len(f.payments.requests))
	}
	req := f.payments.requests[0]
	if req.DiscountCode != "SPRING10" || !req.Amount.Equal(dec("9")) {
		t.Fatalf("discount not applied to invoice: %+v", req)
	}
	fc := f.state(t, testUser)
	if fc.State != enums.FlowAwaitingPayment || fc.DiscountCode != "" {
		t.Fatalf("code should move onto the invoice, got %+v", fc)
	}
}

func TestDiscountCodeUsedByBalanceCheckout(t *testing.T) {
	var paid []string
	f := newRouterFixture(t, usersStub{balance: dec("50")}, checkoutStub{total: dec("10"), paid: &paid, codes: map[string]decimal.Decimal{"SPRING10": dec("10")}})
	ctx := context.Background()

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "code", Args: "SPRING10"}); err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := f.router.HandleCallback(ctx, callback(testUser, ui.CallbackPayBalance)); err != nil {
		t.Fatalf("pay balance: %v", err)
	}
	if len(paid) != 1 || paid[0] != "SPRING10" {
		t.Fatalf("expected checkout with the code, got %v", paid)
	}
	if got := f.state(t, testUser).DiscountCode; got != "" {
		t.Fatalf("used code should be forgotten, got %q", got)
	}
}

func TestInvalidDiscountCodeNotStored(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{total: dec("10")})
	ctx := context.Background()

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "code", Args: "NOPE"}); err != nil {
		t.Fatalf("code: %v", err)
	}
	if f.msgs.last() != ui.DiscountCodeInvalid {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
	if got := f.state(t, testUser).DiscountCode; got != "" {
		t.Fatalf("invalid code stored: %q", got)
	}

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "code"}); err != nil {
		t.Fatalf("code usage: %v", err)
	}
	if f.msgs.last() != ui.DiscountCodeUsage {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestDiscountCodeRemovedByOffAndStart(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{total: dec("10"), codes: map[string]decimal.Decimal{"SPRING10": dec("10")}})
	ctx := context.Background()
	apply := func() {
		t.Helper()
		if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "code", Args: "SPRING10"}); err != nil {
			t.Fatalf("code: %v", err)
		}
	}

	apply()
	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "code", Args: "off"}); err != nil {
		t.Fatalf("code off: %v", err)
	}
	if f.msgs.last() != ui.DiscountCodeRemoved || f.state(t, testUser).DiscountCode != "" {
		t.Fatalf("code not removed, reply %q", f.msgs.last())
	}

	apply()
	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "start"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := f.state(t, testUser).DiscountCode; got != "" {
		t.Fatalf("start should drop the code, got %q", got)
	}
}

func TestEmptyBasketSnapshotIsNotAnError(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	f.baskets.snapshotErr = inventory.ErrEmptyBasket

	if err := f.router.HandleCallback(context.Background(), callback(testUser, ui.CallbackPayBalance)); err != nil {
		t.Fatalf("pay balance: %v", err)
	}
	if f.msgs.last() != ui.BasketEmpty {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestAddToBasketTakenItem(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	f.baskets.addErr = inventory.ErrUnavailable

	if err := f.router.HandleCallback(context.Background(), callback(testUser, ui.CallbackAddPrefix+"11")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(f.msgs.answers) != 1 || f.msgs.answers[0] != ui.ItemUnavailable {
		t.Fatalf("unexpected callback answers %v", f.msgs.answers)
	}
}

func TestShopListsProducts(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	f.catalog.products = []model.Product{
		{ID: 1, Name: "tea", Size: "2g", Price: dec("20")},
		{ID: 2, Name: "tea", Size: "5g", Price: dec("45")},
	}
	ctx := context.Background()

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "shop", Args: "Vilnius Centras tea"}); err != nil {
		t.Fatalf("shop: %v", err)
	}
	if strings.Join(f.catalog.queried, "/") != "Vilnius/Centras/tea" {
		t.Fatalf("unexpected catalog query %v", f.catalog.queried)
	}
	if len(f.msgs.sent) != 2 {
		t.Fatalf("expected one message per product, got %d", len(f.msgs.sent))
	}
	if f.msgs.sent[1].kb[0][0].Data != ui.CallbackAddPrefix+"2" {
		t.Fatalf("unexpected add button %+v", f.msgs.sent[1].kb)
	}

	if err := f.router.HandleCommand(ctx, tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "shop", Args: "Vilnius"}); err != nil {
		t.Fatalf("shop usage: %v", err)
	}
	if f.msgs.last() != ui.ShopUsage {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestWorkerCommandRequiresWorker(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})

	if err := f.router.HandleCommand(context.Background(), tginfra.CommandUpdate{ChatID: testChat, UserID: testUser, Command: "worker", Args: "Vilnius Centras tea"}); err != nil {
		t.Fatalf("worker: %v", err)
	}
	if f.msgs.last() != ui.WorkerForbidden {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}
}

func TestWorkerBulkIntake(t *testing.T) {
	f := newRouterFixture(t, usersStub{}, checkoutStub{})
	ctx := context.Background()

	if err := f.router.HandleCallback(ctx, callback(testWorker, ui.CallbackWorkerBulk+"Vilnius:Centras:tea")); err != nil {
		t.Fatalf("start bulk: %v", err)
	}
	fc := f.state(t, testWorker)
	if fc.State != enums.FlowWorkerBulkPrice || fc.DropCity != "Vilnius" || fc.DropType != "tea" {
		t.Fatalf("unexpected flow: %+v", fc)
	}

	if err := f.router.HandleText(ctx, tginfra.TextUpdate{ChatID: testChat, UserID: testWorker, Text: "2g - 20"}); err != nil {
		t.Fatalf("bulk lines: %v", err)
	}
	if f.msgs.last() != ui.DropsAdded(1, nil) {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}

	if err := f.router.HandleMedia(ctx, tginfra.MediaUpdate{ChatID: testChat, UserID: testWorker, Kind: enums.MediaKindPhoto, FileID: "f1", Caption: "no price here"}); err != nil {
		t.Fatalf("media drop: %v", err)
	}
	if f.msgs.last() != ui.DropsAdded(0, []string{"no price here"}) {
		t.Fatalf("unexpected reply %q", f.msgs.last())
	}

	want := intake.Scope{City: "Vilnius", District: "Centras", Type: "tea"}
	if len(f.intake.scopes) != 1 || f.intake.scopes[0] != want {
		t.Fatalf("unexpected intake scopes %v", f.intake.scopes)
	}

	if err := f.router.HandleCallback(ctx, callback(testWorker, ui.CallbackWorkerBulkDone)); err != nil {
		t.Fatalf("done: %v", err)
	}
	if got := f.state(t, testWorker).State; got != enums.FlowIdle {
		t.Fatalf("expected idle flow, got %s", got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "25", want: "25", ok: true},
		{in: "12,50", want: "12.5", ok: true},
		{in: " 10 EUR", want: "10", ok: true},
		{in: "7.5€", want: "7.5", ok: true},
		{in: "0", ok: false},
		{in: "-5", ok: false},
		{in: "1.234", ok: false},
		{in: "abc", ok: false},
		{in: "", ok: false},
	}

	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if tt.ok != (err == nil) {
			t.Fatalf("parseAmount(%q) err=%v, want ok=%v", tt.in, err, tt.ok)
		}
		if tt.ok && !got.Equal(dec(tt.want)) {
			t.Fatalf("parseAmount(%q)=%s, want %s", tt.in, got, tt.want)
		}
	}
}
