package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const SignatureHeader = "x-nowpayments-sig"

var (
	ErrMissingSignature = errors.New("ipn signature missing")
	ErrBadSignature     = errors.New("ipn signature mismatch")
)

type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeConfirmed
	OutcomePartiallyPaid
	OutcomeFailed
)

// IPN is the instant payment notification body posted to the webhook.
type IPN struct {
	PaymentID     flexString      `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	ActuallyPaid  decimal.Decimal `json:"actually_paid"`
	PayCurrency   string          `json:"pay_currency"`
	OrderID       string          `json:"order_id"`
}

func ParseIPN(body []byte) (IPN, error) {
	var ipn IPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return IPN{}, fmt.Errorf("decode ipn: %w", err)
	}
	if ipn.PaymentID == "" {
		return IPN{}, fmt.Errorf("decode ipn: payment_id missing")
	}
	ipn.PaymentStatus = strings.ToLower(strings.TrimSpace(ipn.PaymentStatus))
	ipn.PayCurrency = strings.ToLower(strings.TrimSpace(ipn.PayCurrency))
	return ipn, nil
}

func (i IPN) ID() string {
	return string(i.PaymentID)
}

func (i IPN) Outcome() Outcome {
	switch i.PaymentStatus {
	case "finished", "confirmed":
		return OutcomeConfirmed
	case "partially_paid":
		return OutcomePartiallyPaid
	case "failed", "expired", "refunded":
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}

// VerifySignature checks the HMAC-SHA512 of the key-sorted body.
func VerifySignature(body []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}

	expected, err := Sign(body, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrBadSignature
	}
	return nil
}

func Sign(body []byte, secret string) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// canonicalJSON re-encodes body with object keys sorted and numbers kept
// verbatim.
func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode ipn body: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode ipn body: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
