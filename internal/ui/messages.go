package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/rules"
)

const (
	PreparingInvoice        = "⏳ Preparing your payment invoice..."
	PurchaseHeader          = "🎉 Purchase Complete! Pickup details below:"
	ThankYou                = "Thank you for your purchase!"
	BasketEmpty             = "🛒 Your basket is empty."
	ItemUnavailable         = "❌ Sorry, this item was just taken. Please choose another one."
	PaymentCancelled        = "Payment cancelled. Reserved items (if any) have been released."
	PaymentCancelFailed     = "Could not cancel payment (already processed or expired)."
	PaymentExpired          = "⌛ Your payment expired. Reserved items (if any) have been released."
	PurchaseFailedSupport   = "❌ Error processing purchase. Your payment was received; support has been notified and will contact you."
	PurchaseRefunded        = "❌ The purchase could not be completed. Your balance has been refunded."
	NothingPurchased        = "❌ None of the items in your basket could be purchased. Your balance was not charged."
	EnterRefillAmount       = "💶 Enter the amount in EUR you want to add to your balance:"
	ChooseCrypto            = "🪙 Choose the cryptocurrency to pay with:"
	WorkerBulkPrompt        = "Send one line per drop: <size> - <price>. A photo or video captioned with such a line becomes one drop with that media. Press Done when finished."
	WorkerBulkFinished      = "✅ Drop intake finished."
	WorkerUsage             = "Usage: /worker <city> <district> <type>"
	ShopUsage               = "Usage: /shop <city> <district> <type>"
	NoProducts              = "Nothing available here right now."
	Welcome                 = "👋 Welcome! Use /shop <city> <district> <type> to browse, or the buttons below."
	AddedToBasket           = "✅ Added to your basket. It is reserved for you for a limited time."
	UnknownAction           = "Unknown action"
	WorkerForbidden         = "⛔ This command is only available to workers."
	GenericError            = "❌ Something went wrong. Please try again later."
	ErrMisconfigured        = "❌ Payments are temporarily unavailable. Please contact support."
	ErrEstimateFailed       = "❌ Could not estimate the crypto amount. Please try again or select a different currency."
	ErrGatewayUnavailable   = "❌ Could not create the payment. Please try again later or contact support."
	ErrAPIKeyInvalid        = "❌ Payment provider rejected our credentials. Please contact support."
	ErrInvalidResponse      = "❌ Invalid response from the payment provider. Please contact support."
	ErrPersistence          = "❌ Could not record the pending payment. Please contact support."
	ErrOpenInvoiceExists    = "⚠️ You already have an open invoice. Pay it or cancel it first."
	ErrInvalidRefillAmount  = "❌ Please enter a valid amount, for example 25 or 12.50."
	ErrPendingCryptoInvoice = "⚠️ Your basket is reserved for an open crypto invoice. Pay it or cancel it before paying with balance."
	DiscountCodeUsage       = "Usage: /code <discount code>. Send /code off to remove it."
	DiscountCodeInvalid     = "❌ This discount code is invalid or expired."
	DiscountCodeRemoved     = "Discount code removed."
)

func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func ErrCurrencyUnsupported(currency string) string {
	return fmt.Sprintf("❌ %s is not supported for estimation. Please select a different currency.", strings.ToUpper(currency))
}

func ErrMinAmountUnavailable(currency string) string {
	return fmt.Sprintf("❌ Could not retrieve the minimum payment amount for %s. Please try again later or select a different currency.", strings.ToUpper(currency))
}

func ErrBasketTooLow(total decimal.Decimal, fiat, currency string) string {
	return fmt.Sprintf("❌ Basket total %s %s is below the minimum required for %s.", Money(total), fiat, strings.ToUpper(currency))
}

func ErrAmountTooLow(target decimal.Decimal, fiat, currency string, crypto, min decimal.Decimal) string {
	return fmt.Sprintf("❌ The equivalent of %s %s in %s (%s) is below the provider minimum (%s %s). Please try a higher amount.",
		Money(target), fiat, strings.ToUpper(currency), crypto.String(), min.String(), strings.ToUpper(currency))
}

func ErrRateLimited(retryAfter time.Duration) string {
	minutes := int(retryAfter.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("⏳ Too many invoices. Try again in %d min.", minutes)
}

func ErrMinDeposit(min decimal.Decimal, fiat string) string {
	return fmt.Sprintf("❌ The minimum top-up is %s %s.", Money(min), fiat)
}

func DiscountCodeApplied(code string, percent, total decimal.Decimal, fiat string) string {
	return fmt.Sprintf("🏷 Code %s applied: -%s%%. Basket total now %s %s.", code, percent.String(), Money(total), fiat)
}

func InsufficientBalance(balance, total decimal.Decimal, fiat string) string {
	return fmt.Sprintf("❌ Insufficient balance: %s %s available, %s %s required.", Money(balance), fiat, Money(total), fiat)
}

// Credit renders the notification for an automatic balance credit.
func Credit(reason enums.CreditReason, amount, newBalance decimal.Decimal, fiat string) string {
	switch reason {
	case enums.CreditReasonOverpayment:
		return fmt.Sprintf("✅ An overpayment of %s %s has been credited to your balance. New balance: %s %s.",
			Money(amount), fiat, Money(newBalance), fiat)
	case enums.CreditReasonUnderpayment:
		return fmt.Sprintf("ℹ️ Your purchase failed due to underpayment, but the received amount (%s %s) has been credited to your balance. New balance: %s %s.",
			Money(amount), fiat, Money(newBalance), fiat)
	case enums.CreditReasonRefund:
		return fmt.Sprintf("↩️ %s %s has been refunded to your balance. New balance: %s %s.",
			Money(amount), fiat, Money(newBalance), fiat)
	default:
		return fmt.Sprintf("✅ Your balance has been credited by %s %s. New balance: %s %s.",
			Money(amount), fiat, Money(newBalance), fiat)
	}
}

func Balance(u model.User, fiat string) string {
	return fmt.Sprintf("👤 Balance: %s %s\n🛍 Purchases: %d", Money(u.Balance), fiat, u.TotalPurchases)
}

// Invoice renders the payment instructions for a created invoice.
type Invoice struct {
	PaymentID  string
	Address    string
	PayAmount  decimal.Decimal
	PayAsset   string
	FiatAmount decimal.Decimal
	Fiat       string
	ExpiresAt  time.Time
	IsPurchase bool
}

func (i Invoice) Text() string {
	title := "🧾 Top-Up Invoice Created"
	if i.IsPurchase {
		title = "🧾 Purchase Invoice Created"
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "Amount: %s %s (%s %s)\n", i.PayAmount.String(), strings.ToUpper(i.PayAsset), Money(i.FiatAmount), i.Fiat)
	fmt.Fprintf(&b, "Payment Address: %s\n", i.Address)
	if !i.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "Expires At: %s UTC\n", i.ExpiresAt.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "\n⚠️ Send exactly this amount of %s to this address.\n", strings.ToUpper(i.PayAsset))
	b.WriteString("ℹ️ Sending more is okay. Your balance will be credited with the excess after network confirmation.\n")
	b.WriteString("✅ Confirmation is automatic after network confirmation.")
	return b.String()
}

func BasketView(items []model.Product, fiat string) string {
	if len(items) == 0 {
		return BasketEmpty
	}
	var b strings.Builder
	b.WriteString("🛒 Your basket:\n\n")
	total := decimal.Zero
	for _, p := range items {
		fmt.Fprintf(&b, "#%d %s %s (%s, %s) - %s %s\n", p.ID, p.Name, p.Size, p.City, p.District, Money(p.Price), fiat)
		total = total.Add(p.Price)
	}
	if len(items) > 0 && items[0].ReservedUntil != nil {
		fmt.Fprintf(&b, "\nReserved until %s UTC", items[0].ReservedUntil.UTC().Format("15:04"))
	}
	fmt.Fprintf(&b, "\nTotal: %s %s", Money(total), fiat)
	return b.String()
}

func ProductLine(p model.Product, fiat string) string {
	return fmt.Sprintf("%s %s - %s %s", p.Name, p.Size, Money(p.Price), fiat)
}

// PickupItem is the per-product delivery text, cut to the telegram message
// limit.
func PickupItem(p model.Purchase, originalText string) string {
	text := strings.TrimSpace(originalText)
	if text == "" {
		text = "(No specific pickup details provided)"
	}
	return rules.TruncateText(fmt.Sprintf("--- Item: %s %s ---\n\n%s", p.Name, p.Size, text), rules.MaxMessageLen)
}

func DropsAdded(n int, failed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Added %d drop(s).", n)
	if len(failed) > 0 {
		b.WriteString("\n\nSkipped lines:")
		for _, line := range failed {
			b.WriteString("\n• " + line)
		}
	}
	return rules.TruncateText(b.String(), rules.MaxMessageLen)
}
