package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "server_requests_total",
		Help: "Count of API requests by handler.",
	}, []string{"handler"})
	requestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "server_request_errors_total",
		Help: "Count of failed API requests by handler.",
	}, []string{"handler"})
	authRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "server_auth_rate_limited_total",
		Help: "Count of authentication attempts dropped by the per-device limiter.",
	})
)
