package tablesess

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	Registry    prometheus.Registerer
}

type MetricsOption func(*MetricsConfig)

func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the registerer. Defaults to prometheus.DefaultRegisterer.
func WithRegistry(reg prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = reg
	}
}

// MetricsObserver records store events as Prometheus metrics.
type MetricsObserver struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	warnings   *prometheus.CounterVec
	swept      *prometheus.CounterVec
}

func NewMetricsObserver(opts ...MetricsOption) *MetricsObserver {
	cfg := MetricsConfig{
		Namespace: "tablesess",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	return &MetricsObserver{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "operations_total",
			Help:        "Session store operations by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Session store operation latency",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"op"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "table_provision_retries_total",
			Help:        "Operations retried after provisioning a missing table",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "warnings_total",
			Help:        "Tolerated conditions by kind",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),
		swept: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sweep_rows_total",
			Help:        "Rows visited by the expiration sweep by result",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),
	}
}

func (m *MetricsObserver) Start(context.Context, Op, string) {}

func (m *MetricsObserver) Retry(_ context.Context, op Op, _ string) {
	m.retries.WithLabelValues(string(op)).Inc()
}

func (m *MetricsObserver) Warn(_ context.Context, w Warning) {
	m.warnings.WithLabelValues(string(w.Kind)).Inc()
}

func (m *MetricsObserver) Done(_ context.Context, op Op, _ string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(string(op), outcome).Inc()
	m.duration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (m *MetricsObserver) Swept(_ context.Context, res SweepResult) {
	m.swept.WithLabelValues("deleted").Add(float64(res.Deleted))
	m.swept.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
	m.swept.WithLabelValues("failed").Add(float64(len(res.Failures)))
	m.swept.WithLabelValues("kept").Add(float64(res.Scanned - res.Deleted - len(res.Skipped) - len(res.Failures)))
}
