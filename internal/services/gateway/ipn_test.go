package gateway

import (
	"errors"
	"testing"
)

func TestSignatureIsIndependentOfKeyOrder(t *testing.T) {
	a := []byte(`{"payment_status":"finished","payment_id":123,"actually_paid":0.5,"pay_amount":0.5}`)
	b := []byte(`{"actually_paid":0.5,"pay_amount":0.5,"payment_id":123,"payment_status":"finished"}`)

	sigA, err := Sign(a, "secret")
	if err != nil {
		t.Fatalf("sign a: %v", err)
	}
	sigB, err := Sign(b, "secret")
	if err != nil {
		t.Fatalf("sign b: %v", err)
	}
	if sigA != sigB {
		t.Fatalf("signatures should match for reordered keys")
	}

	if err := VerifySignature(b, sigA, "secret"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifySignature(b, sigA, "other"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if err := VerifySignature(b, "", "secret"); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestParseIPNOutcome(t *testing.T) {
	cases := map[string]Outcome{
		"finished":       OutcomeConfirmed,
		"confirmed":      OutcomeConfirmed,
		"partially_paid": OutcomePartiallyPaid,
		"expired":        OutcomeFailed,
		"waiting":        OutcomeIgnored,
		"confirming":     OutcomeIgnored,
	}
	for status, want := range cases {
		ipn, err := ParseIPN([]byte(`{"payment_id":"77","payment_status":"` + status + `","actually_paid":"0.1","pay_amount":0.2}`))
		if err != nil {
			t.Fatalf("parse %s: %v", status, err)
		}
		if ipn.Outcome() != want {
			t.Fatalf("status %s: expected %d, got %d", status, want, ipn.Outcome())
		}
		if ipn.ID() != "77" {
			t.Fatalf("unexpected id %s", ipn.ID())
		}
	}

	if _, err := ParseIPN([]byte(`{"payment_status":"finished"}`)); err == nil {
		t.Fatalf("expected error for missing payment_id")
	}
}
