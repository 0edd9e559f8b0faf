package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindMisconfigured       Kind = "misconfigured"
	KindUnavailable         Kind = "unavailable"
	KindCurrencyUnsupported Kind = "currency_unsupported"
	KindAPIKeyInvalid       Kind = "api_key_invalid"
	KindAmountTooLow        Kind = "amount_too_low"
	KindInvalidResponse     Kind = "invalid_response"
	KindRejected            Kind = "rejected"
)

type Error struct {
	Op     string
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("nowpayments %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a gateway error, or "" for foreign errors.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}
