package peer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusNegotiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "peer_negotiations_total",
	Help: "Total number of offers and answers sent to the backend",
}, []string{"kind"})

var prometheusNegotiationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "peer_negotiation_errors_total",
	Help: "Total number of failed negotiations",
}, []string{"kind"})

var prometheusICERestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "peer_ice_restarts_total",
	Help: "Total number of renegotiations caused by ICE failure",
}, []string{"kind"})

var prometheusConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "peer_connections_active",
	Help: "Number of open peer connections",
}, []string{"kind"})
