package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics records what a run provisioned. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	provisioned *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	failed      *prometheus.CounterVec
	lastRun     prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		provisioned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_policies_provisioned_total",
				Help: "Alert policy descriptions handed to a provisioner",
			},
			[]string{"kind"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_policies_skipped_total",
				Help: "Resource kinds skipped because the stack does not declare them",
			},
			[]string{"resource"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_policies_failed_total",
				Help: "Alert policy descriptions a provisioner rejected",
			},
			[]string{"kind"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alert_policies_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
	m.registry.MustRegister(m.provisioned, m.skipped, m.failed, m.lastRun)
	return m
}

func (m *Metrics) ObserveProvisioned(kind string) {
	if m == nil {
		return
	}
	m.provisioned.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSkipped(resource string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(resource).Inc()
}

func (m *Metrics) ObserveFailed(kind string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(kind).Inc()
}

// MarkRun stamps the completion time of a run.
func (m *Metrics) MarkRun(t time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(t.Unix()))
}

// Registry exposes the underlying registry, e.g. for testutil.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the collected metrics to a Pushgateway. Runs are short-lived, so this
// is how they reach Prometheus.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
