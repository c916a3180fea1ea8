package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusRemoteTracksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cli_remote_tracks_total",
	Help: "Total number of remote tracks received",
}, []string{"kind"})

var prometheusRemotePacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cli_remote_packets_total",
	Help: "Total number of RTP packets read from remote tracks",
}, []string{"kind"})
