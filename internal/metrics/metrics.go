// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultOnce sync.Once
	defaultInst *Metrics
)

// Metrics groups every collector of the service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SharesCreated *prometheus.CounterVec // shareonair_shares_created_total{kind}
	Accesses      *prometheus.CounterVec // shareonair_share_accesses_total{op,outcome}

	DownloadBytes  prometheus.Counter // shareonair_download_bytes_total
	DownloadErrors prometheus.Counter // shareonair_download_stream_errors_total
	UploadBytes    prometheus.Counter // shareonair_upload_bytes_total

	Reaped        *prometheus.CounterVec // shareonair_reaped_total{what}
	SweepDuration prometheus.Histogram   // shareonair_sweep_duration_seconds
	LastSweep     prometheus.Gauge       // shareonair_last_sweep_timestamp_seconds

	RequestsTotal   *prometheus.CounterVec   // shareonair_http_requests_total{method,status}
	RequestDuration *prometheus.HistogramVec // shareonair_http_request_duration_seconds{method}
}

// New registers a fresh set of collectors on registry.
func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		SharesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shareonair_shares_created_total",
			Help: "Shares created by kind",
		}, []string{"kind"}),

		Accesses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shareonair_share_accesses_total",
			Help: "Retrieve and download attempts by outcome",
		}, []string{"op", "outcome"}),

		DownloadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "shareonair_download_bytes_total",
			Help: "Bytes streamed to downloaders",
		}),

		DownloadErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "shareonair_download_stream_errors_total",
			Help: "Downloads interrupted mid-stream",
		}),

		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "shareonair_upload_bytes_total",
			Help: "Bytes accepted into the blob store",
		}),

		Reaped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shareonair_reaped_total",
			Help: "Records and blobs removed by the reaper",
		}, []string{"what"}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareonair_sweep_duration_seconds",
			Help:    "Reaper sweep duration",
			Buckets: prometheus.DefBuckets,
		}),

		LastSweep: f.NewGauge(prometheus.GaugeOpts{
			Name: "shareonair_last_sweep_timestamp_seconds",
			Help: "Unix time of the last completed sweep",
		}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shareonair_http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shareonair_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Default returns the process-wide instance registered on the default
// registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInst = New(prometheus.DefaultRegisterer)
	})
	return defaultInst
}

func (m *Metrics) RecordCreate(kind string, bytes int64) {
	if m == nil {
		return
	}
	m.SharesCreated.WithLabelValues(kind).Inc()
	if bytes > 0 {
		m.UploadBytes.Add(float64(bytes))
	}
}

func (m *Metrics) RecordAccess(op, outcome string) {
	if m == nil {
		return
	}
	m.Accesses.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) RecordDownloadStream(bytes int64, err error) {
	if m == nil {
		return
	}
	m.DownloadBytes.Add(float64(bytes))
	if err != nil {
		m.DownloadErrors.Inc()
	}
}

func (m *Metrics) RecordSweep(records, blobs, orphans int, took time.Duration) {
	if m == nil {
		return
	}
	m.Reaped.WithLabelValues("records").Add(float64(records))
	m.Reaped.WithLabelValues("blobs").Add(float64(blobs))
	m.Reaped.WithLabelValues("orphans").Add(float64(orphans))
	m.SweepDuration.Observe(took.Seconds())
	m.LastSweep.SetToCurrentTime()
}

func (m *Metrics) RecordRequest(method string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(took.Seconds())
}
