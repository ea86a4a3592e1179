package zkp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK             = "ok"
	resultStale          = "stale_proof"
	resultUnknownDevice  = "unknown_device"
	resultInactiveDevice = "inactive_device"
	resultBadProof       = "bad_proof"
	resultReplay         = "replay"
	resultError          = "error"
)

var (
	generatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkp_proofs_generated_total",
			Help: "Count of authentication proofs generated, by scheme.",
		},
		[]string{"scheme"},
	)
	verifiedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkp_verifications_total",
			Help: "Count of proof verifications, by result.",
		},
		[]string{"result"},
	)
)
