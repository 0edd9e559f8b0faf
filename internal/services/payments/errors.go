package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies why an invoice could not be opened.
type Kind string

const (
	KindMisconfigured        Kind = "misconfigured"
	KindValidation           Kind = "validation"
	KindDepositTooLow        Kind = "deposit_too_low"
	KindRateLimited          Kind = "rate_limited"
	KindEstimateFailed       Kind = "estimate_failed"
	KindCurrencyUnsupported  Kind = "currency_unsupported"
	KindMinAmountUnavailable Kind = "min_amount_unavailable"
	KindAmountTooLow         Kind = "amount_too_low"
	KindGatewayUnavailable   Kind = "gateway_unavailable"
	KindAPIKeyInvalid        Kind = "api_key_invalid"
	KindInvalidResponse      Kind = "invalid_response"
	KindPersistence          Kind = "persistence"
	KindOpenInvoice          Kind = "open_invoice"
)

type Error struct {
	Kind         Kind
	Currency     string
	MinAmount    decimal.Decimal
	BasketTotal  decimal.Decimal
	CryptoAmount decimal.Decimal
	RetryAfter   time.Duration
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("create invoice: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("create invoice: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReleasesReservation reports whether the caller must give the basket back.
// Every kind fails before a pending deposit exists, so nothing else will
// release the reservation later. A rate limited user keeps the basket to
// retry once the window passes, and an open invoice still holds it.
func (e *Error) ReleasesReservation() bool {
	return e.Kind != KindRateLimited && e.Kind != KindOpenInvoice
}

func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

func newError(kind Kind, currency string, err error) *Error {
	return &Error{Kind: kind, Currency: currency, Err: err}
}
