package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/strand/pkg/domain"
)

// Metrics holds the Prometheus collectors fed by engine hooks.
type Metrics struct {
	NodeExecutions  *prometheus.CounterVec
	NodeDuration    *prometheus.HistogramVec
	Supersteps      prometheus.Counter
	SuperstepTasks  prometheus.Histogram
	CheckpointWrite *prometheus.CounterVec
	CheckpointTime  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		NodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_node_executions_total",
			Help: "Total number of node invocations by outcome.",
		}, []string{"node", "status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strand_node_duration_seconds",
			Help:    "Duration of node invocations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		Supersteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strand_supersteps_total",
			Help: "Total number of committed supersteps.",
		}),
		SuperstepTasks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strand_superstep_tasks",
			Help:    "Number of tasks executed per superstep.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		CheckpointWrite: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_checkpoint_writes_total",
			Help: "Total number of checkpoint writes by source and outcome.",
		}, []string{"source", "status"}),
		CheckpointTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strand_checkpoint_write_seconds",
			Help:    "Latency of checkpoint writes.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.NodeExecutions, m.NodeDuration, m.Supersteps, m.SuperstepTasks, m.CheckpointWrite, m.CheckpointTime,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnd: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeExecutions.WithLabelValues(e.Node, outcome(e.Err)).Inc()
			m.NodeDuration.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
		},
		OnSuperstep: func(_ context.Context, e *domain.SuperstepEvent) {
			m.Supersteps.Inc()
			m.SuperstepTasks.Observe(float64(e.Tasks))
		},
		OnCheckpoint: func(_ context.Context, e *domain.CheckpointEvent) {
			m.CheckpointWrite.WithLabelValues(string(e.Source), outcome(e.Err)).Inc()
			m.CheckpointTime.Observe(e.Duration.Seconds())
		},
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
