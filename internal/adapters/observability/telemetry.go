package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// Telemetry backs the Observability port with zap structured logging and
// Prometheus metrics.
type Telemetry struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewTelemetry registers the pipeline metrics on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewTelemetry(log *zap.Logger, reg prometheus.Registerer) *Telemetry {
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_points_submitted_total",
		Help: "Points accepted by the ingestion buffer.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_points_rejected_total",
		Help: "Points rejected at the ingestion boundary (validation, shutdown, queue full).",
	})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_batches_emitted_total",
		Help: "Batches handed from the buffer to the next stage.",
	})
	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_points_written_total",
		Help: "Points durably written to the backend.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_write_retries_total",
		Help: "Sink write attempts beyond the first.",
	})
	spooled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_batches_spooled_total",
		Help: "Batches diverted to the overflow spool after retry exhaustion.",
	})
	late := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_late_points_total",
		Help: "Points rejected because their window was already finalized.",
	})
	finalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_windows_finalized_total",
		Help: "Aggregation windows finalized and emitted.",
	})
	alertsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_alerts_sent_total",
		Help: "Alerts delivered to the notification channel.",
	})
	alertsSuppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swat_alerts_suppressed_total",
		Help: "Alerts suppressed by the per-kind cooldown.",
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swat_queue_depth",
		Help: "Current number of points waiting in the ingestion queue.",
	})
	windowsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swat_windows_open",
		Help: "Aggregation windows currently accumulating.",
	})
	spoolBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swat_spool_size_bytes",
		Help: "Size of the overflow spool on disk.",
	})
	writeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swat_write_latency_seconds",
		Help:    "Latency of successful sink writes.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(submitted, rejected, batches, written, retries, spooled,
		late, finalized, alertsSent, alertsSuppressed,
		queueDepth, windowsOpen, spoolBytes, writeLatency)

	return &Telemetry{
		log: log,
		counters: map[string]prometheus.Counter{
			"swat_points_submitted_total":  submitted,
			"swat_points_rejected_total":   rejected,
			"swat_batches_emitted_total":   batches,
			"swat_points_written_total":    written,
			"swat_write_retries_total":     retries,
			"swat_batches_spooled_total":   spooled,
			"swat_late_points_total":       late,
			"swat_windows_finalized_total": finalized,
			"swat_alerts_sent_total":       alertsSent,
			"swat_alerts_suppressed_total": alertsSuppressed,
		},
		gauges: map[string]prometheus.Gauge{
			"swat_queue_depth":      queueDepth,
			"swat_windows_open":     windowsOpen,
			"swat_spool_size_bytes": spoolBytes,
		},
		histos: map[string]prometheus.Observer{
			"swat_write_latency_seconds": writeLatency,
		},
	}
}

func (t *Telemetry) LogInfo(msg string, fields ...ports.Field) {
	t.log.Info(msg, zapFields(fields)...)
}

func (t *Telemetry) LogError(msg string, err error, fields ...ports.Field) {
	t.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (t *Telemetry) LogCritical(msg string, err error, fields ...ports.Field) {
	t.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
}

func (t *Telemetry) IncCounter(name string, v float64) {
	if c, ok := t.counters[name]; ok {
		c.Add(v)
	}
}

func (t *Telemetry) SetGauge(name string, v float64) {
	if g, ok := t.gauges[name]; ok {
		g.Set(v)
	}
}

func (t *Telemetry) ObserveLatency(name string, seconds float64) {
	if h, ok := t.histos[name]; ok {
		h.Observe(seconds)
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*Telemetry)(nil)
