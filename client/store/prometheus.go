package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusSubscriptionRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "store_subscription_requests_total",
	Help: "Total number of subscription requests sent to the backend",
})

var prometheusSubscriptionRequestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "store_subscription_request_errors_total",
	Help: "Total number of failed subscription requests",
})

var prometheusSubscriptionRequestsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "store_subscription_requests_queued_total",
	Help: "Total number of subscription requests queued behind an in-flight request",
})

var prometheusMeetingsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "store_meetings_active",
	Help: "Number of connected meetings",
})
