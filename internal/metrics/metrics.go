package metrics

import (
	"fmt"
	"net/http"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry          *prometheus.Registry
	filesTotal        *prometheus.CounterVec
	fileDuration      *prometheus.HistogramVec
	activeFiles       prometheus.Gauge
	resizedTotal      prometheus.Counter
	pixelsProcessed   prometheus.Counter
	bytesWrittenTotal prometheus.Counter
	bytesSavedTotal   prometheus.Counter
}

// New builds a recorder on its own registry. Runtime collectors are only
// useful for long-lived processes that are scraped.
func New(runtimeCollectors bool) *Recorder {
	registry := prometheus.NewRegistry()
	if runtimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Recorder{
		registry: registry,
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webopt_files_total",
			Help: "Images attempted by final status and failure reason.",
		}, []string{"status", "reason"}),
		fileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webopt_file_duration_seconds",
			Help:    "Fetch, transform and emit duration for one image.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webopt_active_files",
			Help: "Images currently being processed.",
		}),
		resizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webopt_resized_total",
			Help: "Successful images whose dimensions changed.",
		}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webopt_pixels_processed_total",
			Help: "Output pixels written across successful images.",
		}),
		bytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webopt_bytes_written_total",
			Help: "Encoded bytes written across successful images.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webopt_bytes_saved_total",
			Help: "Source bytes minus output bytes, clamped at zero per image.",
		}),
	}

	registry.MustRegister(
		m.filesTotal,
		m.fileDuration,
		m.activeFiles,
		m.resizedTotal,
		m.pixelsProcessed,
		m.bytesWrittenTotal,
		m.bytesSavedTotal,
	)
	return m
}

// Begin marks one image as in flight until the returned func is called.
func (m *Recorder) Begin() func() {
	m.activeFiles.Inc()
	return m.activeFiles.Dec
}

func (m *Recorder) Observe(r domain.FileResult) {
	m.filesTotal.WithLabelValues(r.Status, r.Reason).Inc()
	m.fileDuration.WithLabelValues(r.Status).Observe(r.Duration.Seconds())
	if !r.OK() {
		return
	}

	if r.Resized() {
		m.resizedTotal.Inc()
	}
	m.pixelsProcessed.Add(float64(r.Width * r.Height))
	m.bytesWrittenTotal.Add(float64(r.OutputBytes))
	m.bytesSavedTotal.Add(float64(r.BytesSaved()))
}

func (m *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
