package botapp

import (
	"errors"

	"github.com/goblin987/ultramaxgoodbot/internal/services/balance"
	"github.com/goblin987/ultramaxgoodbot/internal/services/checkout"
	paymentsvc "github.com/goblin987/ultramaxgoodbot/internal/services/payments"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

// invoiceErrorText picks the user message for a failed invoice creation.
func invoiceErrorText(err error, fiat string, purchase bool) string {
	perr, ok := paymentsvc.AsError(err)
	if !ok {
		return ui.GenericError
	}

	switch perr.Kind {
	case paymentsvc.KindMisconfigured:
		return ui.ErrMisconfigured
	case paymentsvc.KindDepositTooLow:
		return ui.ErrMinDeposit(perr.MinAmount, fiat)
	case paymentsvc.KindRateLimited:
		return ui.ErrRateLimited(perr.RetryAfter)
	case paymentsvc.KindEstimateFailed:
		return ui.ErrEstimateFailed
	case paymentsvc.KindCurrencyUnsupported:
		return ui.ErrCurrencyUnsupported(perr.Currency)
	case paymentsvc.KindMinAmountUnavailable:
		return ui.ErrMinAmountUnavailable(perr.Currency)
	case paymentsvc.KindAmountTooLow:
		if perr.CryptoAmount.IsPositive() {
			return ui.ErrAmountTooLow(perr.BasketTotal, fiat, perr.Currency, perr.CryptoAmount, perr.MinAmount)
		}
		if purchase {
			return ui.ErrBasketTooLow(perr.BasketTotal, fiat, perr.Currency)
		}
		return ui.ErrEstimateFailed
	case paymentsvc.KindGatewayUnavailable:
		return ui.ErrGatewayUnavailable
	case paymentsvc.KindAPIKeyInvalid:
		return ui.ErrAPIKeyInvalid
	case paymentsvc.KindInvalidResponse:
		return ui.ErrInvalidResponse
	case paymentsvc.KindPersistence:
		return ui.ErrPersistence
	case paymentsvc.KindOpenInvoice:
		return ui.ErrOpenInvoiceExists
	default:
		return ui.GenericError
	}
}

// checkoutErrorText maps balance checkout failures. An insufficient balance
// returns "" because its message needs the current balance.
func checkoutErrorText(err error) string {
	switch {
	case errors.Is(err, balance.ErrInsufficientBalance):
		return ""
	case errors.Is(err, checkout.ErrInvalidDiscountCode):
		return ui.DiscountCodeInvalid
	case errors.Is(err, checkout.ErrNothingToFinalize):
		return ui.NothingPurchased
	case errors.Is(err, checkout.ErrRefundFailed):
		return ui.PurchaseFailedSupport
	case errors.Is(err, checkout.ErrPurchaseRefunded):
		return ui.PurchaseRefunded
	default:
		return ui.GenericError
	}
}
