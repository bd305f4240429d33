package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/victorarias/agentic-relay"

// OTelMetrics records every event as an OTEL counter named after the metric,
// with the event fields as attributes.
type OTelMetrics struct {
	meter metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

// NewOTelMetrics creates an emitter on meter. A nil meter uses the global
// MeterProvider; configure it via otel.SetMeterProvider first.
func NewOTelMetrics(meter metric.Meter) *OTelMetrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	return &OTelMetrics{meter: meter, counters: make(map[string]metric.Int64Counter)}
}

// Emit adds one to the counter for e.Metric.
func (m *OTelMetrics) Emit(ctx context.Context, e Event) {
	counter, err := m.counter(e.Metric)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attributes(e.Fields)...))
}

func (m *OTelMetrics) counter(name string) (metric.Int64Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c, nil
	}
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	m.counters[name] = c
	return c, nil
}

// Tracer returns the module tracer from the global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func attributes(fields map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}
