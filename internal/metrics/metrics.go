// Package metrics registers the Prometheus collectors for the token economy
// and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wordmaster_tokens_credited_total",
		Help: "Tokens credited to student balances",
	})

	TokensDebited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wordmaster_tokens_debited_total",
		Help: "Tokens debited from student balances by settlements",
	})

	RewardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wordmaster_rewards_total",
		Help: "Completed attempts, labeled by review flag and cap reason",
	}, []string{"review", "cap"})

	TestRequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wordmaster_test_request_transitions_total",
		Help: "Test request state changes and rejections, labeled by outcome",
	}, []string{"outcome"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wordmaster_settlements_total",
		Help: "Settlement requests, labeled by resulting status",
	}, []string{"status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wordmaster_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wordmaster_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})
)
