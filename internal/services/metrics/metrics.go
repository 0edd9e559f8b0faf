package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvoicesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_invoices_created_total",
			Help: "Gateway invoices created, by purpose.",
		},
		[]string{"purpose"},
	)

	InvoiceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_invoice_failures_total",
			Help: "Invoice creation failures, by error kind.",
		},
		[]string{"kind"},
	)

	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_reconciliations_total",
			Help: "Processed gateway notifications, by outcome.",
		},
		[]string{"outcome"},
	)

	Finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_finalizations_total",
			Help: "Purchase finalizations, by payment method and result.",
		},
		[]string{"method", "result"},
	)

	ItemsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shop_items_sold_total",
			Help: "Products committed to purchases.",
		},
	)

	ReservationsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_reservations_released_total",
			Help: "Released product reservations, by trigger.",
		},
		[]string{"trigger"},
	)

	CriticalAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shop_critical_alerts_total",
			Help: "Operator alerts raised for inconsistent post-payment states.",
		},
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shop_gateway_request_duration_seconds",
			Help:    "Duration of payment gateway calls.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20},
		},
		[]string{"op"},
	)
)
