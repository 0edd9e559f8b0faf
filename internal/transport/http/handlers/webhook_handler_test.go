package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goblin987/ultramaxgoodbot/internal/services/gateway"
	paymentsvc "github.com/goblin987/ultramaxgoodbot/internal/services/payments"
)

type ipnStub struct {
	calls []gateway.IPN
	err   error
}

func (s *ipnStub) HandleIPN(_ context.Context, ipn gateway.IPN) (paymentsvc.Reconciliation, error) {
	s.calls = append(s.calls, ipn)
	if s.err != nil {
		return paymentsvc.Reconciliation{}, s.err
	}
	return paymentsvc.Reconciliation{Outcome: paymentsvc.OutcomeCommitted, PaymentID: ipn.ID()}, nil
}

const ipnBody = `{"payment_status":"finished","payment_id":5077125051,"pay_amount":0.001,"actually_paid":0.001,"pay_currency":"btc"}`

func postWebhook(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("x-nowpayments-sig", signature)
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func TestWebhookAcceptsSignedNotification(t *testing.T) {
	stub := &ipnStub{}
	h := NewWebhookHandler(stub, "secret", nil)

	sig, err := gateway.Sign([]byte(ipnBody), "secret")
	if err != nil {
		t.Fatalf("sign body: %v", err)
	}
	rr := postWebhook(h, ipnBody, sig)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if len(stub.calls) != 1 || stub.calls[0].ID() != "5077125051" {
		t.Fatalf("unexpected calls %+v", stub.calls)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if raw["outcome"] != paymentsvc.OutcomeCommitted || raw["payment_id"] != "5077125051" {
		t.Fatalf("unexpected response %v", raw)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	stub := &ipnStub{}
	h := NewWebhookHandler(stub, "secret", nil)

	for _, sig := range []string{"", "deadbeef"} {
		rr := postWebhook(h, ipnBody, sig)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("signature %q: got %d want %d", sig, rr.Code, http.StatusUnauthorized)
		}
	}
	if len(stub.calls) != 0 {
		t.Fatalf("unsigned notification must not be processed")
	}
}

func TestWebhookWithoutSecretSkipsVerification(t *testing.T) {
	stub := &ipnStub{}
	h := NewWebhookHandler(stub, "", nil)

	if rr := postWebhook(h, ipnBody, ""); rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h := NewWebhookHandler(&ipnStub{}, "", nil)

	if rr := postWebhook(h, `{"payment_status":"finished"}`, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing id: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	if rr := postWebhook(h, `not json`, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("garbage: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestWebhookProcessingFailure(t *testing.T) {
	h := NewWebhookHandler(&ipnStub{err: errors.New("db down")}, "", nil)

	if rr := postWebhook(h, ipnBody, ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusInternalServerError)
	}
}
