package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics covering the order pipeline.
var (
	OrdersAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_accepted_total",
			Help: "Orders accepted by intake and queued for fulfillment",
		},
	)

	OrdersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Orders rejected by intake, by reason",
		},
		[]string{"reason"},
	)

	OrdersFulfilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_fulfilled_total",
			Help: "Orders persisted by the fulfillment consumer",
		},
	)

	StockConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_conflicts_total",
			Help: "Conditional stock writes lost to a concurrent update",
		},
	)

	StockDecrementSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_decrement_skipped_total",
			Help: "Redeliveries that found the inventory delta already applied",
		},
	)

	MessagesPoisonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_poisoned_total",
			Help: "Messages routed to the poison queue",
		},
	)

	StockNotificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_notifications_total",
			Help: "Stock-change notifications observed by the sink",
		},
	)

	FulfillDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fulfill_duration_seconds",
			Help:    "Duration of one fulfillment handler invocation",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers all pipeline metrics with the default registry.
func RegisterMetrics() {
	prometheus.MustRegister(
		OrdersAcceptedTotal,
		OrdersRejectedTotal,
		OrdersFulfilledTotal,
		StockConflictsTotal,
		StockDecrementSkippedTotal,
		MessagesPoisonedTotal,
		StockNotificationsTotal,
		FulfillDuration,
	)
}
