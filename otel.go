package inbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/inbox"
)

// Instrumented operations.
const (
	opList     = "list"
	opSend     = "send"
	opMarkRead = "mark_read"
	opUnread   = "unread"
	opAuth     = "auth"
)

// opMetrics groups the instruments of one operation.
type opMetrics struct {
	latency metric.Float64Histogram
	count   metric.Int64Counter
	errors  metric.Int64Counter
}

// otelInstrumentation holds OpenTelemetry instrumentation for the inbox client.
type otelInstrumentation struct {
	tracingEnabled bool
	tracer         trace.Tracer

	metricsEnabled bool
	ops            map[string]*opMetrics
	dropped        metric.Int64Counter // stale completions discarded
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)
	o.ops = make(map[string]*opMetrics)

	for _, op := range []string{opList, opSend, opMarkRead, opUnread, opAuth} {
		m := &opMetrics{}
		var err error

		m.latency, err = meter.Float64Histogram(
			"inbox."+op+".duration",
			metric.WithDescription("Duration of "+op+" operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}

		m.count, err = meter.Int64Counter(
			"inbox."+op+".count",
			metric.WithDescription("Number of "+op+" operations"),
		)
		if err != nil {
			return err
		}

		m.errors, err = meter.Int64Counter(
			"inbox."+op+".errors",
			metric.WithDescription("Number of "+op+" errors"),
		)
		if err != nil {
			return err
		}

		o.ops[op] = m
	}

	var err error
	o.dropped, err = meter.Int64Counter(
		"inbox.stale_results.count",
		metric.WithDescription("Number of completions discarded because a newer load or session superseded them"),
	)
	return err
}

// startSpan starts a new span if tracing is enabled.
// The returned function ends the span, recording err if non-nil.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// record records the duration and outcome of one operation.
func (o *otelInstrumentation) record(ctx context.Context, op string, duration time.Duration, err error, attrs ...attribute.KeyValue) {
	if !o.metricsEnabled {
		return
	}
	m, ok := o.ops[op]
	if !ok {
		return
	}

	set := metric.WithAttributes(attrs...)
	m.latency.Record(ctx, duration.Seconds(), set)
	m.count.Add(ctx, 1, set)
	if err != nil {
		m.errors.Add(ctx, 1, set)
	}
}

// recordDropped counts a completion discarded as stale.
func (o *otelInstrumentation) recordDropped(ctx context.Context, op string) {
	if !o.metricsEnabled || o.dropped == nil {
		return
	}
	o.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
