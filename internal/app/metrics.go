package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"bastproxy/internal/logging"
)

// instruments holds the process's event-dispatch and pipeline-throughput
// metrics, exported to stdout by whatever MeterProvider cmd/bastproxy
// installs (a no-op provider records nothing if none was configured,
// matching the teacher's exthooks_otel.go pattern of calling the global
// OpenTelemetry API directly rather than threading a provider handle
// through every call site).
type instruments struct {
	dispatchLatency metric.Float64Histogram
	linesProcessed  metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter("bastproxy/app")

	dispatchLatency, err := meter.Float64Histogram(
		"bastproxy.dispatch.latency",
		metric.WithDescription("time spent handling one dispatcher loop iteration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logging.Warnf("app", "creating dispatch latency histogram: %v", err)
	}

	linesProcessed, err := meter.Int64Counter(
		"bastproxy.pipeline.lines",
		metric.WithDescription("lines routed through the record pipeline, by direction"),
	)
	if err != nil {
		logging.Warnf("app", "creating pipeline line counter: %v", err)
	}

	return &instruments{dispatchLatency: dispatchLatency, linesProcessed: linesProcessed}
}

func (m *instruments) recordDispatch(kind string, start time.Time) {
	if m.dispatchLatency == nil {
		return
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	m.dispatchLatency.Record(context.Background(), elapsed, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *instruments) recordLine(direction string) {
	if m.linesProcessed == nil {
		return
	}
	m.linesProcessed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("direction", direction)))
}
