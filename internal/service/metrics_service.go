package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Download modes reported by the delivery metrics.
const (
	DeliveryModeStream    = "stream"
	DeliveryModeSignedURL = "signed_url"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface and the document pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	downloads       *prometheus.CounterVec
	versions        prometheus.Counter
	versionRetries  prometheus.Counter
	storageDrift    *prometheus.CounterVec
	activityDropped *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	downloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_downloads_total",
		Help: "Document downloads by delivery mode",
	}, []string{"mode"})

	versions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_versions_created_total",
		Help: "Document versions archived",
	})

	versionRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_version_conflicts_total",
		Help: "Version number conflicts that triggered a retry",
	})

	storageDrift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_storage_drift_total",
		Help: "Metadata rows whose blob was missing from storage",
	}, []string{"kind"})

	activityDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_events_dropped_total",
		Help: "Activity events that were not recorded",
	}, []string{"reason"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, downloads, versions, versionRetries, storageDrift, activityDropped, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		downloads:       downloads,
		versions:        versions,
		versionRetries:  versionRetries,
		storageDrift:    storageDrift,
		activityDropped: activityDropped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordDownload counts a served download by mode.
func (m *MetricsService) RecordDownload(mode string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(mode).Inc()
}

// RecordVersionCreated counts an archived version.
func (m *MetricsService) RecordVersionCreated() {
	if m == nil {
		return
	}
	m.versions.Inc()
}

// RecordVersionConflict counts a retried version number collision.
func (m *MetricsService) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionRetries.Inc()
}

// RecordStorageDrift counts a metadata row whose blob is gone. kind is "document" or "version".
func (m *MetricsService) RecordStorageDrift(kind string) {
	if m == nil {
		return
	}
	m.storageDrift.WithLabelValues(kind).Inc()
}

// RecordActivityDropped counts an activity event lost before persistence.
func (m *MetricsService) RecordActivityDropped(reason string) {
	if m == nil {
		return
	}
	m.activityDropped.WithLabelValues(reason).Inc()
}
