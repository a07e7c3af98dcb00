// Package metrics exports transfer counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/franksops/filexfer/engine"
)

const namespace = "filexfer"

// Transfers records batch and file events. It is an engine.Observer.
type Transfers struct {
	registry *prometheus.Registry

	batchesTotal    *prometheus.CounterVec
	filesTotal      *prometheus.CounterVec
	checksumTotal   *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	fileDuration    *prometheus.HistogramVec
	filesInProgress prometheus.Gauge
	probesTotal     *prometheus.CounterVec
}

// New creates the transfer metrics on a private registry, alongside the Go
// runtime and process collectors.
func New() *Transfers {
	m := &Transfers{registry: prometheus.NewRegistry()}

	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed transfer batches by mode.",
		},
		[]string{"mode"},
	)
	m.filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by mode and status.",
		},
		[]string{"mode", "status"},
	)
	m.checksumTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_results_total",
			Help:      "Integrity check results.",
		},
		[]string{"result"},
	)
	m.bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes read from sources by mode.",
		},
		[]string{"mode"},
	)
	m.fileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time spent on one file, verification included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"mode"},
	)
	m.filesInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "files_in_progress",
		Help:      "Files currently being transferred.",
	})
	m.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ftp_probes_total",
			Help:      "FTP connectivity probes by result.",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.batchesTotal,
		m.filesTotal,
		m.checksumTotal,
		m.bytesTotal,
		m.fileDuration,
		m.filesInProgress,
		m.probesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Transfers) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Transfers) BatchStarted(string, engine.TransferMode, int) {}

func (m *Transfers) FileStarted(engine.TransferJob) {
	m.filesInProgress.Inc()
}

func (m *Transfers) FileFinished(o engine.TransferOutcome) {
	m.filesInProgress.Dec()

	status := "failed"
	if o.Succeeded() {
		status = "succeeded"
	}
	mode := string(o.Mode)
	m.filesTotal.WithLabelValues(mode, status).Inc()
	m.checksumTotal.WithLabelValues(string(o.Checksum)).Inc()
	m.bytesTotal.WithLabelValues(mode).Add(float64(o.Bytes))
	m.fileDuration.WithLabelValues(mode).Observe(o.Duration.Seconds())
}

func (m *Transfers) BatchFinished(r *engine.BatchResult) {
	m.batchesTotal.WithLabelValues(string(r.Mode)).Inc()
}

// RecordProbe counts an FTP connectivity probe. result is "ok",
// "network_error" or "protocol_error".
func (m *Transfers) RecordProbe(result string) {
	m.probesTotal.WithLabelValues(result).Inc()
}
