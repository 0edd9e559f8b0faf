package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/goblin987/ultramaxgoodbot/internal/services/metrics"
)

const maxErrorBody = 2048

type Config struct {
	BaseURL         string
	APIKey          string
	EstimateTimeout time.Duration
	PaymentTimeout  time.Duration
}

// Client talks to the NOWPayments REST API.
type Client struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	estimateTimeout time.Duration
	paymentTimeout  time.Duration
}

type PaymentRequest struct {
	PriceAmount      decimal.Decimal
	PriceCurrency    string
	PayCurrency      string
	IPNCallbackURL   string
	OrderID          string
	OrderDescription string
}

type Payment struct {
	PaymentID     string
	PayAddress    string
	PayAmount     decimal.Decimal
	PayCurrency   string
	ExpiresAt     time.Time
	ExpirationRaw string
	PriceAmount   decimal.Decimal
	PaymentStatus string
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.EstimateTimeout <= 0 {
		cfg.EstimateTimeout = 15 * time.Second
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 20 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:          strings.TrimSpace(cfg.APIKey),
		httpClient:      httpClient,
		estimateTimeout: cfg.EstimateTimeout,
		paymentTimeout:  cfg.PaymentTimeout,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != "" && c.baseURL != ""
}

// Estimate converts a fiat amount into the pay currency.
func (c *Client) Estimate(ctx context.Context, amount decimal.Decimal, fiat, payCurrency string) (decimal.Decimal, error) {
	const op = "estimate"
	if !c.Configured() {
		return decimal.Zero, &Error{Op: op, Kind: KindMisconfigured}
	}

	q := url.Values{}
	q.Set("amount", amount.StringFixed(2))
	q.Set("currency_from", strings.ToLower(fiat))
	q.Set("currency_to", strings.ToLower(payCurrency))

	var out struct {
		EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	}
	status, body, err := c.do(ctx, op, http.MethodGet, "/v1/estimate?"+q.Encode(), nil, c.estimateTimeout)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		kind := KindUnavailable
		if strings.Contains(strings.ToLower(string(body)), "currencies not found") {
			kind = KindCurrencyUnsupported
		} else if status == http.StatusUnauthorized || status == http.StatusForbidden {
			kind = KindAPIKeyInvalid
		}
		return decimal.Zero, &Error{Op: op, Kind: kind, Status: status, Body: truncate(body)}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, &Error{Op: op, Kind: KindInvalidResponse, Body: truncate(body), Err: err}
	}
	if !out.EstimatedAmount.IsPositive() {
		return decimal.Zero, &Error{Op: op, Kind: KindInvalidResponse, Body: truncate(body), Err: errors.New("estimated_amount missing")}
	}
	return out.EstimatedAmount, nil
}

// MinAmount returns the smallest payment the gateway accepts in payCurrency.
func (c *Client) MinAmount(ctx context.Context, payCurrency string) (decimal.Decimal, error) {
	const op = "min-amount"
	if !c.Configured() {
		return decimal.Zero, &Error{Op: op, Kind: KindMisconfigured}
	}

	cur := strings.ToLower(payCurrency)
	q := url.Values{}
	q.Set("currency_from", cur)
	q.Set("currency_to", cur)

	var out struct {
		MinAmount decimal.Decimal `json:"min_amount"`
	}
	status, body, err := c.do(ctx, op, http.MethodGet, "/v1/min-amount?"+q.Encode(), nil, c.estimateTimeout)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		return decimal.Zero, &Error{Op: op, Kind: KindUnavailable, Status: status, Body: truncate(body)}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, &Error{Op: op, Kind: KindInvalidResponse, Body: truncate(body), Err: err}
	}
	if out.MinAmount.IsNegative() {
		return decimal.Zero, &Error{Op: op, Kind: KindInvalidResponse, Body: truncate(body), Err: errors.New("negative min_amount")}
	}
	return out.MinAmount, nil
}

func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	const op = "payment"
	if !c.Configured() {
		return Payment{}, &Error{Op: op, Kind: KindMisconfigured}
	}

	priceAmount, _ := req.PriceAmount.Float64()
	payload := map[string]any{
		"price_amount":      priceAmount,
		"price_currency":    strings.ToLower(req.PriceCurrency),
		"pay_currency":      strings.ToLower(req.PayCurrency),
		"ipn_callback_url":  req.IPNCallbackURL,
		"order_id":          req.OrderID,
		"order_description": req.OrderDescription,
		"is_fixed_rate":     false,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Payment{}, fmt.Errorf("marshal payment request: %w", err)
	}

	status, body, err := c.do(ctx, op, http.MethodPost, "/v1/payment", raw, c.paymentTimeout)
	if err != nil {
		return Payment{}, err
	}
	switch {
	case status == http.StatusUnauthorized:
		return Payment{}, &Error{Op: op, Kind: KindAPIKeyInvalid, Status: status, Body: truncate(body)}
	case status == http.StatusBadRequest && strings.Contains(string(body), "AMOUNT_MINIMAL_ERROR"):
		return Payment{}, &Error{Op: op, Kind: KindAmountTooLow, Status: status, Body: truncate(body)}
	case status >= http.StatusInternalServerError:
		return Payment{}, &Error{Op: op, Kind: KindUnavailable, Status: status, Body: truncate(body)}
	case status != http.StatusOK && status != http.StatusCreated:
		return Payment{}, &Error{Op: op, Kind: KindRejected, Status: status, Body: truncate(body)}
	}

	var out struct {
		PaymentID              flexString       `json:"payment_id"`
		PayAddress             string           `json:"pay_address"`
		PayAmount              *decimal.Decimal `json:"pay_amount"`
		PayCurrency            string           `json:"pay_currency"`
		PriceAmount            decimal.Decimal  `json:"price_amount"`
		PaymentStatus          string           `json:"payment_status"`
		ExpirationEstimateDate string           `json:"expiration_estimate_date"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Payment{}, &Error{Op: op, Kind: KindInvalidResponse, Body: truncate(body), Err: err}
	}

	var missing []string
	if out.PaymentID == "" {
		missing = append(missing, "payment_id")
	}
	if out.PayAddress == "" {
		missing = append(missing, "pay_address")
	}
	if out.PayAmount == nil || !out.PayAmount.IsPositive() {
		missing = append(missing, "pay_amount")
	}
	if out.PayCurrency == "" {
		missing = append(missing, "pay_currency")
	}
	if len(missing) > 0 {
		return Payment{}, &Error{
			Op:   op,
			Kind: KindInvalidResponse,
			Body: truncate(body),
			Err:  fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")),
		}
	}

	payment := Payment{
		PaymentID:     string(out.PaymentID),
		PayAddress:    out.PayAddress,
		PayAmount:     *out.PayAmount,
		PayCurrency:   strings.ToLower(out.PayCurrency),
		PriceAmount:   out.PriceAmount,
		PaymentStatus: out.PaymentStatus,
		ExpirationRaw: out.ExpirationEstimateDate,
	}
	if ts, err := time.Parse(time.RFC3339, out.ExpirationEstimateDate); err == nil {
		payment.ExpiresAt = ts.UTC()
	}
	return payment, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.GatewayLatency.WithLabelValues(op))
	defer timer.ObserveDuration()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, &Error{Op: op, Kind: KindMisconfigured, Err: err}
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &Error{Op: op, Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, &Error{Op: op, Kind: KindUnavailable, Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, data, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
