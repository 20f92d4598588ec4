package streak

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the streak batch collectors on a private registry. A nil
// *Metrics records nothing.
type Metrics struct {
	Registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "habitline",
			Subsystem: "streak",
			Name:      "transitions_total",
			Help:      "Owners evaluated by the daily streak run, by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "habitline",
			Subsystem: "streak",
			Name:      "failures_total",
			Help:      "Owners the daily streak run failed for.",
		}, []string{"retryable"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "habitline",
			Subsystem: "streak",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a daily streak run.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "habitline",
			Subsystem: "streak",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed daily streak run.",
		}),
	}
	m.Registry.MustRegister(m.transitions, m.failures, m.duration, m.lastSuccess)
	return m
}

func (m *Metrics) observe(r Report) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues("incremented").Add(float64(r.Incremented))
	m.transitions.WithLabelValues("reset").Add(float64(r.Reset))
	m.transitions.WithLabelValues("unchanged").Add(float64(r.Unchanged))
	m.transitions.WithLabelValues("already_run").Add(float64(r.AlreadyRun))
	m.transitions.WithLabelValues("uninitialized").Add(float64(r.Uninitialized))
	m.failures.WithLabelValues("true").Add(float64(r.Retryable))
	m.failures.WithLabelValues("false").Add(float64(r.Failed - r.Retryable))
	m.duration.Observe(r.Duration.Seconds())
	m.lastSuccess.SetToCurrentTime()
}

// Pusher sends a registry to a Prometheus Pushgateway after a batch run.
type Pusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPusher(endpoint, job string, grouping map[string]string) *Pusher {
	return &Pusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

func (p *Pusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}
