package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_bus_published_total",
			Help: "Count of events published, by topic.",
		},
		[]string{"topic"},
	)
	subscriberGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_bus_subscribers",
			Help: "Number of live realtime subscriber sessions.",
		},
	)
	droppedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_bus_slow_subscribers_dropped_total",
			Help: "Count of subscriber sessions dropped for exceeding the queue bound.",
		},
	)
)
