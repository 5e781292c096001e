// Package metrics exposes Prometheus collectors for sweeps, watched
// directories and HTTP requests.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// StatsSource is satisfied by *cleanup.Sweeper.
type StatsSource interface {
	Stats() map[string]cleanup.DirStats
}

type PrometheusMetrics struct {
	registry        prometheus.Registerer
	sweepsTotal     *prometheus.CounterVec
	filesDeleted    *prometheus.CounterVec
	deleteErrors    *prometheus.CounterVec
	filesSkipped    *prometheus.CounterVec
	bytesFreed      prometheus.Counter
	sweepDuration   *prometheus.HistogramVec
	lastSweep       prometheus.Gauge
	dirFiles        *prometheus.GaugeVec
	dirBytes        *prometheus.GaugeVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// InitPrometheusMetrics creates and registers all collectors under namespace.
// A nil reg registers with prometheus.DefaultRegisterer.
func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		registry: reg,
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeps_total",
				Help:      "Total number of retention sweeps",
			},
			[]string{"kind"},
		),
		filesDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_files_deleted_total",
				Help:      "Files deleted by sweeps",
			},
			[]string{"kind"},
		),
		deleteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_delete_errors_total",
				Help:      "Files that could not be deleted after retries",
			},
			[]string{"kind"},
		),
		filesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_files_skipped_total",
				Help:      "Eligible files skipped because they were in use",
			},
			[]string{"kind"},
		),
		bytesFreed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_bytes_freed_total",
				Help:      "Bytes released by deleted files",
			},
		),
		sweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of retention sweeps",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"kind"},
		),
		lastSweep: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sweep_last_timestamp_seconds",
				Help:      "Unix time of the last completed sweep",
			},
		),
		dirFiles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "watched_dir_files",
				Help:      "Regular files currently in a watched directory",
			},
			[]string{"dir"},
		),
		dirBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "watched_dir_bytes",
				Help:      "Total size of files in a watched directory",
			},
			[]string{"dir"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.sweepsTotal,
		m.filesDeleted,
		m.deleteErrors,
		m.filesSkipped,
		m.bytesFreed,
		m.sweepDuration,
		m.lastSweep,
		m.dirFiles,
		m.dirBytes,
		m.requestsTotal,
		m.requestDuration,
	)

	return m
}

// ObserveSweep implements cleanup.Recorder.
func (m *PrometheusMetrics) ObserveSweep(kind string, res cleanup.Result) {
	m.sweepsTotal.WithLabelValues(kind).Inc()
	m.filesDeleted.WithLabelValues(kind).Add(float64(res.Deleted))
	m.deleteErrors.WithLabelValues(kind).Add(float64(res.Errors))
	m.filesSkipped.WithLabelValues(kind).Add(float64(res.Skipped))
	m.bytesFreed.Add(float64(res.BytesFreed))
	m.sweepDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())
	m.lastSweep.SetToCurrentTime()
}

// SetDirStats publishes a stats snapshot as gauges.
func (m *PrometheusMetrics) SetDirStats(stats map[string]cleanup.DirStats) {
	for name, st := range stats {
		m.dirFiles.WithLabelValues(name).Set(float64(st.FileCount))
		m.dirBytes.WithLabelValues(name).Set(float64(st.TotalSizeBytes))
	}
}

func (m *PrometheusMetrics) ObserveRequest(route, method string, code int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RefreshDirStats publishes src's stats immediately and then on every
// activation of the cron spec. The returned func stops the refresher and
// waits for a running refresh to finish.
func (m *PrometheusMetrics) RefreshDirStats(src StatsSource, spec string) (func(), error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { m.SetDirStats(src.Stats()) }); err != nil {
		return nil, fmt.Errorf("invalid stats refresh schedule %q: %w", spec, err)
	}

	m.SetDirStats(src.Stats())
	c.Start()

	return func() { <-c.Stop().Done() }, nil
}
