package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tiergate_requests_total", Help: "Total chat requests by tier used and outcome"},
		[]string{"tier", "status"},
	)
	LatencyMS = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "tiergate_latency_ms", Help: "Pipeline latency in ms", Buckets: prometheus.LinearBuckets(50, 50, 20)},
		[]string{"tier"},
	)
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tiergate_tokens_total", Help: "Committed tokens"},
		[]string{"tier", "kind"},
	)
	FallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tiergate_fallbacks_total", Help: "Premium failures retried on cheap"},
	)
	AdmissionDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tiergate_admission_denied_total", Help: "Requests denied by a quota check"},
		[]string{"scope", "period", "limit_type"},
	)
)

func Register() {
	prometheus.MustRegister(RequestsTotal, LatencyMS, TokensTotal, FallbacksTotal, AdmissionDenied)
}
