package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	DatagramsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_datagrams_received_total",
			Help: "Total datagrams received, by decoded message kind",
		},
		[]string{"kind"},
	)

	DatagramsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_datagrams_sent_total",
			Help: "Total datagrams sent, by message kind",
		},
		[]string{"kind"},
	)

	SendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_send_errors_total",
			Help: "Total datagram sends that failed",
		},
	)

	ReceiveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_receive_errors_total",
			Help: "Total receive errors other than timeouts",
		},
	)

	DecodeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_decode_fallbacks_total",
			Help: "Total datagrams that did not parse as frames and were treated as chat text",
		},
	)

	// Session metrics
	PeersJoined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanchat_peers_joined",
			Help: "Currently joined peers",
		},
	)

	PeersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_peers_expired_total",
			Help: "Total peers evicted for inactivity",
		},
	)

	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanchat_history_messages",
			Help: "Messages currently held in the history ring",
		},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lanchat_dispatch_duration_seconds",
			Help:    "Time spent handling one datagram",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)
