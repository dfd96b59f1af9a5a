// Package metrics provides Prometheus metrics for content flows
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the flow metrics and implements simplecms.FlowObserver.
type Recorder struct {
	FlowsTotal        *prometheus.CounterVec
	FlowDuration      *prometheus.HistogramVec
	BulkFailuresTotal *prometheus.CounterVec
}

// New creates and registers the flow metrics on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		FlowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_flow_total",
				Help: "Total number of content flows",
			},
			[]string{"kind", "flow", "status"},
		),
		FlowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cms_flow_duration_seconds",
				Help:    "Duration of content flows in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind", "flow"},
		),
		BulkFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_bulk_write_failures_total",
				Help: "Total number of descendant writes that failed during subtree moves",
			},
			[]string{"kind"},
		),
	}
}

// ObserveFlow records one finished flow.
func (r *Recorder) ObserveFlow(kind, flow string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.FlowsTotal.WithLabelValues(kind, flow, status).Inc()
	r.FlowDuration.WithLabelValues(kind, flow).Observe(elapsed.Seconds())
}

// BulkWriteFailures records n failed descendant writes.
func (r *Recorder) BulkWriteFailures(kind string, n int) {
	if n <= 0 {
		return
	}
	r.BulkFailuresTotal.WithLabelValues(kind).Add(float64(n))
}
