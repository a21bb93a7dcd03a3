package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"estatedesk/backoffice/internal/storage"
)

// Metrics owns its registry so several handlers can coexist in one process.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadBytes     *prometheus.CounterVec
	uploadedFiles   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		),
		uploadBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploads_bytes_total",
				Help: "Bytes accepted for storage by upload kind",
			},
			[]string{"kind"},
		),
		uploadedFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploads_files_total",
				Help: "Files stored by upload kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.uploadBytes,
		m.uploadedFiles,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeUploads(kind storage.Kind, files ...storage.File) {
	for _, f := range files {
		m.uploadedFiles.WithLabelValues(string(kind)).Inc()
		m.uploadBytes.WithLabelValues(string(kind)).Add(float64(f.Size()))
	}
}

// middleware labels requests with the matched route template so ids do not
// blow up label cardinality.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
