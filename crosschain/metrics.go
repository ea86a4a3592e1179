package crosschain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	anchorUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosschain_anchor_updates_total",
		Help: "Count of anchor state changes recorded, per network and status.",
	}, []string{"network", "status"})
	watcherGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crosschain_receipt_watchers",
		Help: "Number of receipt watchers currently following broadcast transactions.",
	})
)
