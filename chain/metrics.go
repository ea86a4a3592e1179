package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_send_latency_seconds",
			Help:    "Time taken to sign and broadcast a transaction, including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"network"},
	)
	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_rpc_retries_total",
			Help: "Transient RPC failures that triggered a backoff and retry.",
		},
		[]string{"network"},
	)
	sendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_send_failures_total",
			Help: "Broadcasts abandoned on permanent errors or after exhausting attempts.",
		},
		[]string{"network"},
	)
)
