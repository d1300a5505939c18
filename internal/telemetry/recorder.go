package telemetry

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const pkg = "github.com/relaymesh/gateway/"

// Provider provides Recorder instances scoped to particular subsystems.
//
// The zero value of a *Provider uses a no-op tracer, a no-op meter and the
// default slog logger.
type Provider struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Logger         *slog.Logger
	Attrs          []Attr
}

// Recorder records traces, metrics and logs for a particular subsystem.
type Recorder struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger

	errorCount Instrument[int64]
}

// Recorder returns a Recorder for the subsystem with the given name.
func (p *Provider) Recorder(name string, attrs ...Attr) *Recorder {
	var (
		tracerProvider trace.TracerProvider
		meterProvider  metric.MeterProvider
		logger         *slog.Logger
	)

	if p != nil {
		tracerProvider = p.TracerProvider
		meterProvider = p.MeterProvider
		logger = p.Logger

		attrs = append(
			slices.Clone(p.Attrs),
			attrs...,
		)
	}

	if tracerProvider == nil {
		tracerProvider = nooptrace.NewTracerProvider()
	}

	if meterProvider == nil {
		meterProvider = noopmetric.NewMeterProvider()
	}

	if logger == nil {
		logger = slog.Default()
	}

	loggerAttrs := asSlogAttrs(attrs)
	loggerArgs := make([]any, len(loggerAttrs))
	for i, a := range loggerAttrs {
		loggerArgs[i] = a
	}

	r := &Recorder{
		tracer: tracerProvider.Tracer(
			pkg+name,
			trace.WithInstrumentationAttributes(asOtelKeyValues(attrs)...),
		),
		meter: meterProvider.Meter(
			pkg+name,
			metric.WithInstrumentationAttributes(asOtelKeyValues(attrs)...),
		),
		logger: logger.With(loggerArgs...),
	}

	r.errorCount = r.Counter(
		"errors",
		"{error}",
		"The number of errors that have occurred.",
	)

	return r
}

// Logger returns the structured logger associated with this recorder, for
// passing explicitly through call chains.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}

// StartSpan starts a new span representing a single operation.
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, trace.Span) {
	return r.tracer.Start(
		ctx,
		name,
		trace.WithAttributes(asOtelKeyValues(attrs)...),
	)
}

// Info logs an informational message to the log and as a span event.
func (r *Recorder) Info(
	ctx context.Context,
	message string,
	attrs ...Attr,
) {
	r.logger.LogAttrs(ctx, slog.LevelInfo, message, asSlogAttrs(attrs)...)

	trace.SpanFromContext(ctx).AddEvent(
		message,
		trace.WithAttributes(asOtelKeyValues(attrs)...),
	)
}

// Error logs an error message to the log and as a span event.
//
// It marks the span as an error and increments the "errors" metric.
func (r *Recorder) Error(
	ctx context.Context,
	message string,
	err error,
	attrs ...Attr,
) {
	r.logger.LogAttrs(
		ctx,
		slog.LevelError,
		message,
		append(asSlogAttrs(attrs), slog.Any("err", err))...,
	)
	r.errorCount(ctx, 1)

	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// Instrument is a function that records a metric value of type T.
type Instrument[T any] func(context.Context, T, ...Attr)

// Counter returns a new monotonic counter instrument.
func (r *Recorder) Counter(name, unit, desc string) Instrument[int64] {
	inst, err := r.meter.Int64Counter(
		name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	if err != nil {
		panic(err)
	}

	return func(ctx context.Context, value int64, attrs ...Attr) {
		inst.Add(
			ctx,
			value,
			metric.WithAttributes(asOtelKeyValues(attrs)...),
		)
	}
}
