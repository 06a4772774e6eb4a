package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steeze_http_response_seconds",
			Help:    "http response time by worker.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"worker"},
	)

	requestsBySession = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "steeze_http_requests_by_session_total", Help: "http requests by signed-in state"},
		[]string{"signed_in"},
	)

	requestsToURI = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "steeze_http_requests_to_uri_total", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "steeze_http_requests_total", Help: "http requests by code and method"},
		[]string{"code", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		requestsBySession,
		requestsToURI,
		requests,
	)
}
