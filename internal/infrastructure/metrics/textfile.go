// Package metrics exports run summaries in the Prometheus text format for the
// node_exporter textfile collector.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jbctechsolutions/activitysync/internal/domain/run"
)

const namespace = "activitysync"

// TextfileExporter writes the gauges of the most recent run to a .prom file.
// Each run overwrites the file.
type TextfileExporter struct {
	path     string
	registry *prometheus.Registry

	lastSync    prometheus.Gauge
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	duration    prometheus.Gauge
	activities  *prometheus.GaugeVec
}

// NewTextfileExporter creates an exporter that writes to path.
func NewTextfileExporter(path string) *TextfileExporter {
	e := &TextfileExporter{
		path:     path,
		registry: prometheus.NewRegistry(),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix timestamp of the persisted sync watermark.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp at which the most recent run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the most recent run completed without a fatal error, 0 otherwise.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the most recent run.",
		}),
		activities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_activities",
			Help:      "Activities handled by the most recent run, by outcome.",
		}, []string{"outcome"}),
	}

	e.registry.MustRegister(e.lastRun, e.lastSuccess, e.duration, e.activities)
	return e
}

// Path returns the textfile location.
func (e *TextfileExporter) Path() string {
	return e.path
}

// ObserveRun sets the gauges from record and rewrites the textfile.
// last_sync_timestamp_seconds is left out when no watermark is persisted.
func (e *TextfileExporter) ObserveRun(_ context.Context, record *run.Record) error {
	watermark := record.Watermark
	if watermark.IsZero() && !record.SinceDefaulted {
		watermark = record.Since
	}
	e.registry.Unregister(e.lastSync)
	if !watermark.IsZero() {
		e.lastSync.Set(float64(watermark.Unix()))
		e.registry.MustRegister(e.lastSync)
	}

	e.lastRun.Set(float64(record.CompletedAt.Unix()))
	e.duration.Set(record.Duration.Seconds())
	if record.Status == run.StatusFailed {
		e.lastSuccess.Set(0)
	} else {
		e.lastSuccess.Set(1)
	}

	e.activities.WithLabelValues("candidates").Set(float64(record.Candidates))
	e.activities.WithLabelValues(string(run.OutcomeDuplicate)).Set(float64(record.Duplicates))
	e.activities.WithLabelValues(string(run.OutcomeTransferred)).Set(float64(record.Transferred))
	e.activities.WithLabelValues(string(run.OutcomeSkipped)).Set(float64(record.Skipped))

	if err := os.MkdirAll(filepath.Dir(e.path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
