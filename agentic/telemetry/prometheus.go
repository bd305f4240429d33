package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics maps controller events onto Prometheus counters. Session
// keys are deliberately not used as labels.
type PrometheusMetrics struct {
	// FailFast counts fail-fast decisions.
	// Labels: provider, reason
	FailFast *prometheus.CounterVec

	// Compactions counts compaction invocations.
	// Labels: provider, outcome (compacted|unchanged|failed)
	Compactions *prometheus.CounterVec

	// Truncations counts tool-result truncation fallbacks.
	// Labels: provider, outcome (truncated|unchanged|failed)
	Truncations *prometheus.CounterVec

	// Exhausted counts turns that ran out of recovery options.
	// Labels: provider
	Exhausted *prometheus.CounterVec

	// Attempts counts attempt invocations by classification.
	// Labels: provider, outcome
	Attempts *prometheus.CounterVec

	// Other counts any metric without a dedicated counter.
	// Labels: metric
	Other *prometheus.CounterVec
}

// NewPrometheusMetrics creates the counters and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		FailFast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "overflow_fail_fast_total",
			Help:      "Overflow recoveries abandoned without retrying",
		}, []string{"provider", "reason"}),
		Compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "overflow_compactions_total",
			Help:      "Compaction invocations made while recovering from overflow",
		}, []string{"provider", "outcome"}),
		Truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "overflow_truncations_total",
			Help:      "Tool-result truncation fallbacks made while recovering from overflow",
		}, []string{"provider", "outcome"}),
		Exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "overflow_exhausted_total",
			Help:      "Turns that ended with a terminal context overflow",
		}, []string{"provider"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "attempts_total",
			Help:      "Attempt invocations by outcome",
		}, []string{"provider", "outcome"}),
		Other: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_total",
			Help:      "Telemetry events without a dedicated counter",
		}, []string{"metric"}),
	}
	for _, c := range []prometheus.Collector{m.FailFast, m.Compactions, m.Truncations, m.Exhausted, m.Attempts, m.Other} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("telemetry: register counter: %w", err)
		}
	}
	return m, nil
}

// Emit increments the counter that matches e.Metric.
func (m *PrometheusMetrics) Emit(_ context.Context, e Event) {
	provider := label(e.Fields, "provider")
	switch e.Metric {
	case MetricFailFast:
		m.FailFast.WithLabelValues(provider, label(e.Fields, "reason")).Inc()
	case MetricCompaction:
		m.Compactions.WithLabelValues(provider, label(e.Fields, "outcome")).Inc()
	case MetricTruncation:
		m.Truncations.WithLabelValues(provider, label(e.Fields, "outcome")).Inc()
	case MetricExhausted:
		m.Exhausted.WithLabelValues(provider).Inc()
	case MetricAttempt:
		m.Attempts.WithLabelValues(provider, label(e.Fields, "outcome")).Inc()
	default:
		m.Other.WithLabelValues(e.Metric).Inc()
	}
}

func label(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
