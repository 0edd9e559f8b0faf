package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/services/gateway"
	paymentsvc "github.com/goblin987/ultramaxgoodbot/internal/services/payments"
	"github.com/goblin987/ultramaxgoodbot/internal/transport/http/dto"
	httperrors "github.com/goblin987/ultramaxgoodbot/internal/transport/http/errors"
)

const (
	signatureHeader = "x-nowpayments-sig"
	maxWebhookBody  = 1 << 20
)

type IPNProcessor interface {
	HandleIPN(ctx context.Context, ipn gateway.IPN) (paymentsvc.Reconciliation, error)
}

// WebhookHandler accepts gateway payment notifications. The signature is
// checked against the raw body only when an IPN secret is configured.
type WebhookHandler struct {
	payments IPNProcessor
	secret   string
	log      *zap.Logger
}

func NewWebhookHandler(payments IPNProcessor, secret string, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{payments: payments, secret: strings.TrimSpace(secret), log: log}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "unreadable request body")
		return
	}

	if h.secret != "" {
		if err := gateway.VerifySignature(body, r.Header.Get(signatureHeader), h.secret); err != nil {
			h.log.Warn("webhook signature rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			writeUnauthorized(w, "INVALID_SIGNATURE", "invalid ipn signature")
			return
		}
	}

	ipn, err := gateway.ParseIPN(body)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid ipn payload")
		return
	}

	rec, err := h.payments.HandleIPN(r.Context(), ipn)
	if err != nil {
		h.log.Error("webhook processing failed",
			zap.String("payment_id", ipn.ID()),
			zap.String("status", ipn.PaymentStatus),
			zap.Error(err),
		)
		writeInternal(w, "INTERNAL_ERROR", "failed to process notification")
		return
	}

	h.log.Info("webhook processed",
		zap.String("payment_id", ipn.ID()),
		zap.String("status", ipn.PaymentStatus),
		zap.String("outcome", rec.Outcome),
	)
	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{
		OK:        true,
		PaymentID: ipn.ID(),
		Outcome:   rec.Outcome,
	})
}
