package apiapp

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/transport/http/handlers"
)

type Dependencies struct {
	Payments  handlers.IPNProcessor
	IPNSecret string
	Checks    map[string]func(context.Context) error
	Logger    *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	checks := make(map[string]handlers.Pinger, len(deps.Checks))
	for name, fn := range deps.Checks {
		checks[name] = fn
	}
	healthHandler := handlers.NewHealthHandler(checks)
	webhookHandler := handlers.NewWebhookHandler(deps.Payments, deps.IPNSecret, deps.Logger)

	r.Get("/health", healthHandler.Get)
	r.Get("/healthz", healthHandler.Get)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook", webhookHandler.Handle)
}
