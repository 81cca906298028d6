package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics collects the API server's Prometheus metrics on a
// private registry so tests can build isolated instances.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal        *prometheus.CounterVec
	retrievalDuration     *prometheus.HistogramVec
	retrievalMergedHits   *prometheus.HistogramVec
	collectionErrorsTotal *prometheus.CounterVec

	answerTotal    *prometheus.CounterVec
	answerDuration *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cartia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cartia",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartia",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total federated retrievals by mode.",
		},
		[]string{"service", "mode"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cartia",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Federated retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	retrievalMergedHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cartia",
			Subsystem: "retrieval",
			Name:      "merged_hits",
			Help:      "Distribution of merged evidence hits per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 30},
		},
		[]string{"service", "mode"},
	)
	collectionErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartia",
			Subsystem: "retrieval",
			Name:      "collection_errors_total",
			Help:      "Total per-collection search failures absorbed by degradation.",
		},
		[]string{"service", "collection"},
	)
	answerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartia",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total generated answers by mode and outcome.",
		},
		[]string{"service", "mode", "status"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cartia",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "End-to-end answer generation duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"service", "mode"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievalMergedHits,
		collectionErrorsTotal,
		answerTotal,
		answerDuration,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		retrievalTotal:        retrievalTotal,
		retrievalDuration:     retrievalDuration,
		retrievalMergedHits:   retrievalMergedHits,
		collectionErrorsTotal: collectionErrorsTotal,
		answerTotal:           answerTotal,
		answerDuration:        answerDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordRetrieval tracks one federated retrieval: its mode ("evidence",
// "comparative" or "related"), how many merged hits it produced and how
// long the fan-out took.
func (m *HTTPServerMetrics) RecordRetrieval(service, mode string, mergedHits int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, mode).Inc()
	m.retrievalMergedHits.WithLabelValues(service, mode).Observe(float64(mergedHits))
	m.retrievalDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
}

// RecordCollectionError counts a degraded per-collection search.
func (m *HTTPServerMetrics) RecordCollectionError(service, collection string) {
	if collection == "" {
		collection = "unknown"
	}
	m.collectionErrorsTotal.WithLabelValues(service, collection).Inc()
}

// RecordAnswer tracks one generated answer by mode and outcome.
func (m *HTTPServerMetrics) RecordAnswer(service, mode, status string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.answerTotal.WithLabelValues(service, mode, status).Inc()
	m.answerDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
