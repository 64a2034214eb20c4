package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdfinvert/converter/raster"
)

type metrics struct {
	registry           *prometheus.Registry
	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	pagesTotal         prometheus.Counter
	fallbackPagesTotal prometheus.Counter
	sizeRatio          prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfinvert_http_requests_total",
			Help: "Total HTTP requests handled by the upload server.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdfinvert_http_request_duration_seconds",
			Help:    "Upload server request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		conversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfinvert_conversions_total",
			Help: "Total conversions by outcome (ok or failure kind).",
		}, []string{"outcome"}),
		conversionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdfinvert_conversion_duration_seconds",
			Help:    "Conversion latency in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		pagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfinvert_pages_converted_total",
			Help: "Total pages written by successful conversions.",
		}),
		fallbackPagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfinvert_fallback_quality_pages_total",
			Help: "Pages encoded at the fallback JPEG quality.",
		}),
		sizeRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdfinvert_output_size_ratio",
			Help:    "Output bytes divided by input bytes.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 25, 50},
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.conversionsTotal,
		m.conversionDuration,
		m.pagesTotal,
		m.fallbackPagesTotal,
		m.sizeRatio,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeConversion(result raster.Result, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = raster.KindOf(err).String()
	}
	m.conversionsTotal.WithLabelValues(outcome).Inc()
	m.conversionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.pagesTotal.Add(float64(result.Pages))
	m.fallbackPagesTotal.Add(float64(len(result.FallbackPages)))
	m.sizeRatio.Observe(result.SizeRatio)
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(path string) string {
	switch path {
	case "/", "/upload", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
