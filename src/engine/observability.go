package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/seuros/gopher-relay/src/engine"

// ObservabilityConfig controls telemetry collection
type ObservabilityConfig struct {
	// EnableTracing enables spans around lowering and code generation
	EnableTracing bool

	// EnableMetrics enables cache and compile metrics
	EnableMetrics bool

	// TracingAttributes are additional attributes to add to all spans
	TracingAttributes []attribute.KeyValue

	// MetricAttributes are additional attributes to add to all metrics
	MetricAttributes []attribute.KeyValue

	// TracerProvider and MeterProvider default to the otel globals when nil.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// DefaultObservabilityConfig returns default observability configuration
func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		EnableTracing: true,
		EnableMetrics: true,
		TracingAttributes: []attribute.KeyValue{
			attribute.String("relay.component", "compile_engine"),
			attribute.String("relay.version", Version()),
		},
		MetricAttributes: []attribute.KeyValue{
			attribute.String("relay.component", "compile_engine"),
		},
	}
}

// observabilityInstruments holds OpenTelemetry instruments
type observabilityInstruments struct {
	config *ObservabilityConfig
	tracer trace.Tracer
	meter  metric.Meter

	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheEntries    metric.Int64UpDownCounter
	compileDuration metric.Float64Histogram
	compileErrors   metric.Int64Counter
}

// initObservability initializes OpenTelemetry instruments
func initObservability(config *ObservabilityConfig) *observabilityInstruments {
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := config.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tracer := tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version()))
	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(Version()))

	instruments := &observabilityInstruments{
		config: config,
		tracer: tracer,
		meter:  meter,
	}

	var err error

	instruments.cacheHits, err = meter.Int64Counter(
		"relay.cache.hits",
		metric.WithDescription("Number of compile requests served from the cache"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.cacheMisses, err = meter.Int64Counter(
		"relay.cache.misses",
		metric.WithDescription("Number of compile requests that created a cache entry"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.cacheEntries, err = meter.Int64UpDownCounter(
		"relay.cache.entries",
		metric.WithDescription("Number of live cache entries"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.compileDuration, err = meter.Float64Histogram(
		"relay.compile.duration",
		metric.WithDescription("Duration of lowering and code generation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.compileErrors, err = meter.Int64Counter(
		"relay.compile.errors",
		metric.WithDescription("Number of failed lowerings and code generations"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return instruments
}

// spanContext holds span-specific context information
type spanContext struct {
	stage     string
	span      trace.Span
	startTime time.Time
}

// startCompileSpan opens a span for one collaborator call. stage is
// "lower" or "jit".
func (oi *observabilityInstruments) startCompileSpan(stage string, key *CacheKey) *spanContext {
	sc := &spanContext{stage: stage, startTime: time.Now()}
	if !oi.config.EnableTracing {
		return sc
	}

	attrs := make([]attribute.KeyValue, 0, len(oi.config.TracingAttributes)+3)
	attrs = append(attrs, oi.config.TracingAttributes...)
	attrs = append(attrs,
		attribute.String("relay.target", key.Target().String()),
		attribute.Int64("relay.key.hash", int64(key.Hash())),
		attribute.Int("relay.func.params", len(key.Source().Params)),
	)

	_, sc.span = oi.tracer.Start(context.Background(), "relay."+stage,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return sc
}

// finishCompileSpan records the outcome of the call opened by startCompileSpan.
func (oi *observabilityInstruments) finishCompileSpan(sc *spanContext, funcName string, err error) {
	duration := time.Since(sc.startTime)

	if oi.config.EnableMetrics {
		stageAttr := attribute.String("relay.stage", sc.stage)
		statusAttr := attribute.String("relay.status", "success")
		if err != nil {
			statusAttr = attribute.String("relay.status", "error")
			oi.compileErrors.Add(context.Background(), 1,
				metric.WithAttributes(append(oi.metricAttrs(), stageAttr)...))
		}
		oi.compileDuration.Record(context.Background(), duration.Seconds(),
			metric.WithAttributes(append(oi.metricAttrs(), stageAttr, statusAttr)...))
	}

	if sc.span == nil {
		return
	}
	sc.span.SetAttributes(attribute.Float64("relay.compile.duration_ms", float64(duration.Nanoseconds())/1e6))
	if funcName != "" {
		sc.span.SetAttributes(attribute.String("relay.func.name", funcName))
	}
	if err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	} else {
		sc.span.SetStatus(codes.Ok, "")
	}
	sc.span.End()
}

// recordProbe counts a cache hit or miss.
func (oi *observabilityInstruments) recordProbe(stage string, hit bool) {
	if !oi.config.EnableMetrics {
		return
	}
	attrs := metric.WithAttributes(append(oi.metricAttrs(), attribute.String("relay.stage", stage))...)
	if hit {
		oi.cacheHits.Add(context.Background(), 1, attrs)
	} else {
		oi.cacheMisses.Add(context.Background(), 1, attrs)
	}
}

// recordEntries adjusts the live entry gauge by delta.
func (oi *observabilityInstruments) recordEntries(delta int64) {
	if !oi.config.EnableMetrics || delta == 0 {
		return
	}
	oi.cacheEntries.Add(context.Background(), delta, metric.WithAttributes(oi.metricAttrs()...))
}

// metricAttrs returns a fresh copy so callers may append to it.
func (oi *observabilityInstruments) metricAttrs() []attribute.KeyValue {
	return append([]attribute.KeyValue(nil), oi.config.MetricAttributes...)
}
