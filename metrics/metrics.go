package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiolib",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "audiolib",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds, including body transfer.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"method", "route"})

	// StreamOutcomesTotal counts stream requests by outcome. Missing records and
	// missing files share a status code but not a reason label.
	StreamOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiolib",
		Name:      "stream_outcomes_total",
		Help:      "Stream requests by outcome and reason.",
	}, []string{"outcome", "reason"})

	StreamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audiolib",
		Name:      "stream_bytes_total",
		Help:      "Audio bytes written to clients.",
	})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiolib",
		Name:      "active_streams",
		Help:      "Streams currently transferring bytes.",
	})

	PlaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audiolib",
		Name:      "plays_total",
		Help:      "Play initiations recorded against the metadata store.",
	})

	PlayCountErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audiolib",
		Name:      "play_count_errors_total",
		Help:      "Play counter increments that failed at the metadata store.",
	})

	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiolib",
		Name:      "uploads_total",
		Help:      "Track uploads by result.",
	}, []string{"result"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamOutcomesTotal,
		StreamBytesTotal,
		ActiveStreams,
		PlaysTotal,
		PlayCountErrorsTotal,
		UploadsTotal,
	)
}
