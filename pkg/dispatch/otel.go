package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// dispatchMetrics holds the OpenTelemetry instruments for a dispatcher.
// They are created once in New and reused for every processed item.
type dispatchMetrics struct {
	processedCounter  metric.Int64Counter
	failureCounter    metric.Int64Counter
	retryCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

func newDispatchMetrics(meter metric.Meter) (*dispatchMetrics, error) {
	m := &dispatchMetrics{}
	var err error

	m.processedCounter, err = meter.Int64Counter(
		"dispatch.processed",
		metric.WithDescription("Items handled successfully"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create processed counter: %w", err)
	}

	m.failureCounter, err = meter.Int64Counter(
		"dispatch.failures",
		metric.WithDescription("Items whose handler failed after all retries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}

	m.retryCounter, err = meter.Int64Counter(
		"dispatch.retries",
		metric.WithDescription("Handler retry attempts beyond the first"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retry counter: %w", err)
	}

	m.durationHistogram, err = meter.Float64Histogram(
		"dispatch.duration",
		metric.WithDescription("Item handling duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

// recordMetrics records the outcome of one processed item. Returns silently
// when metrics are not configured.
func (d *Dispatcher[T]) recordMetrics(ctx context.Context, duration time.Duration, attempts int, err error) {
	if d.metrics == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("dispatcher.id", d.id))

	d.metrics.durationHistogram.Record(ctx, float64(duration.Milliseconds()), opts)
	if attempts > 1 {
		d.metrics.retryCounter.Add(ctx, int64(attempts-1), opts)
	}
	if err != nil {
		d.metrics.failureCounter.Add(ctx, 1, opts)
	} else {
		d.metrics.processedCounter.Add(ctx, 1, opts)
	}
}
