package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	heartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_heartbeats_total",
		Help: "Count of accepted device heartbeats.",
	})
	devicesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "presence_devices",
		Help: "Number of tracked devices per presence class.",
	}, []string{"status"})
	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_status_transitions_total",
		Help: "Count of presence class changes by new class.",
	}, []string{"status"})
)
