package ctf

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricPackets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocview_ctf_packets_total",
			Help: "Number of CTF packets decoded",
		},
	)
	metricEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocview_ctf_events_total",
			Help: "Number of CTF events decoded by event kind",
		},
		[]string{"kind"},
	)
	metricDecodeSeconds = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Name: "allocview_ctf_decode_duration_seconds",
			Help: "Wall time spent decoding complete dumps",
		},
	)
)

func init() {
	prometheus.MustRegister(metricPackets)
	prometheus.MustRegister(metricEvents)
	prometheus.MustRegister(metricDecodeSeconds)
}
