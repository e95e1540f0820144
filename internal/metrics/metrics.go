// Package metrics exports import counters for Prometheus and serves them
// over HTTP alongside a health endpoint.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/geoimport/internal/core"
)

// Import outcomes used as the "outcome" label.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomeBusy      = "busy"
)

// Collector owns the import collectors registered on one registry.
type Collector struct {
	imports    *prometheus.CounterVec
	inserted   prometheus.Counter
	rejected   prometheus.Counter
	bytesRead  prometheus.Gauge
	bytesTotal prometheus.Gauge
	duration   *prometheus.HistogramVec
}

// NewCollector registers the import collectors on reg, or on the default
// registerer when reg is nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoimport_imports_total",
			Help: "Imports finished, partitioned by outcome.",
		}, []string{"outcome"}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoimport_records_inserted_total",
			Help: "Records inserted by committed imports.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoimport_records_rejected_total",
			Help: "Records skipped because the store refused them.",
		}),
		bytesRead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoimport_import_bytes_read",
			Help: "Compressed bytes consumed by the current or last import.",
		}),
		bytesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoimport_import_bytes_total",
			Help: "Compressed size of the current or last import source.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geoimport_import_duration_seconds",
			Help:    "Wall time per import, partitioned by outcome.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		c.imports,
		c.inserted,
		c.rejected,
		c.bytesRead,
		c.bytesTotal,
		c.duration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register import collector: %w", err)
		}
	}
	return c, nil
}

// Progress returns a sink that mirrors byte progress into the gauges.
func (c *Collector) Progress() core.ProgressSink {
	return core.ProgressFunc(func(bytesRead, totalBytes int64) {
		c.bytesRead.Set(float64(bytesRead))
		c.bytesTotal.Set(float64(totalBytes))
	})
}

// ObserveImport records the outcome of one Import call. res may be nil.
func (c *Collector) ObserveImport(res *core.Result, err error) {
	outcome := Outcome(err)
	c.imports.WithLabelValues(outcome).Inc()

	if res == nil {
		return
	}
	if res.Committed {
		c.inserted.Add(float64(res.Inserted))
		c.rejected.Add(float64(res.Rejected))
	}
	c.duration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
}

// Outcome maps an Import error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, core.ErrImportInProgress):
		return OutcomeBusy
	case errors.Is(err, core.ErrCanceled):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
