// Package monitoring exposes Prometheus metrics for the HTTP API.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zonal_requests_total",
		Help: "Total number of /v1/summarize requests by response code",
	}, []string{"code"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zonal_request_duration_ms",
		Help:    "Summarize request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	FeaturesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonal_features_total",
		Help: "Total features summarized",
	})
	FeatureErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonal_feature_errors_total",
		Help: "Total features skipped under the lenient policy",
	})
	RowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonal_rows_total",
		Help: "Total result rows returned",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(FeaturesTotal)
	prometheus.MustRegister(FeatureErrorsTotal)
	prometheus.MustRegister(RowsTotal)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
