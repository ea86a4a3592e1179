package multisig

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proposalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multisig_proposals_created_total",
		Help: "Count of proposals entering PENDING.",
	})
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multisig_transitions_total",
		Help: "Count of proposal transitions by resulting state.",
	}, []string{"state"})
	casRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multisig_cas_retries_total",
		Help: "Count of compare-and-set conflicts retried during transitions.",
	})
)
