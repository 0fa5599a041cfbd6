// Package metrics exports directory service metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/idlookup/internal/core"
)

const namespace = "idlookup"

var (
	_ core.MetricsRecorder   = (*Recorder)(nil)
	_ core.IndexSizeRecorder = (*Recorder)(nil)
	_ core.BulkRecorder      = (*Recorder)(nil)
)

// Recorder implements the core recorder interfaces on a Prometheus registry.
type Recorder struct {
	registry    *prometheus.Registry
	opLatency   *prometheus.HistogramVec
	opTotal     *prometheus.CounterVec
	indexSize   *prometheus.GaugeVec
	bulkEntries *prometheus.CounterVec
}

// NewRecorder registers the service metrics, plus the Go and process
// collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of directory operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Directory operations by outcome",
		}, []string{"op", "status"}),
		indexSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries in the in-memory index",
		}, []string{"kind"}),
		bulkEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_entries_total",
			Help:      "Bulk import entries by outcome",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		r.opLatency,
		r.opTotal,
		r.indexSize,
		r.bulkEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records one operation.
func (r *Recorder) Observe(_ context.Context, op string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.opLatency.WithLabelValues(op).Observe(d.Seconds())
	r.opTotal.WithLabelValues(op, status).Inc()
}

// SetIndexSize records the current name and code counts.
func (r *Recorder) SetIndexSize(names, codes int) {
	r.indexSize.WithLabelValues("name").Set(float64(names))
	r.indexSize.WithLabelValues("code").Set(float64(codes))
}

// ObserveBulk counts the entries of one bulk import.
func (r *Recorder) ObserveBulk(accepted, rejected int) {
	r.bulkEntries.WithLabelValues("accepted").Add(float64(accepted))
	r.bulkEntries.WithLabelValues("rejected").Add(float64(rejected))
}

// TrackBulkLimiter exports the limiter's active and maximum slots.
func (r *Recorder) TrackBulkLimiter(l *core.BulkLimiter) {
	r.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bulk_imports_active",
			Help:      "Bulk imports currently holding a slot",
		}, func() float64 { return float64(l.ActiveCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bulk_imports_max",
			Help:      "Bulk import slots",
		}, func() float64 { return float64(l.MaxConcurrent()) }),
	)
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
