package tracing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an OTel tracer behind the pipeline's minimal span facade.
// It is strictly best-effort: when disabled every call is a cheap no-op,
// and init failures downgrade to the no-op tracer instead of failing
// startup.
type Tracer struct {
	tracer trace.Tracer
}

// Setup builds the tracer and returns a shutdown func that flushes pending
// spans. Shutdown is a no-op when tracing is disabled.
func Setup(ctx context.Context, serviceName string, enabled bool, logger *slog.Logger) (*Tracer, func(context.Context) error) {
	noShutdown := func(context.Context) error { return nil }
	if !enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(serviceName)}, noShutdown
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		logger.Warn("trace_exporter_init_failed", "error", err)
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(serviceName)}, noShutdown
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		logger.Warn("trace_resource_init_failed", "error", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	return &Tracer{tracer: tp.Tracer(serviceName)}, tp.Shutdown
}

func (t *Tracer) Start(ctx context.Context, operation string) (context.Context, func(err error)) {
	spanCtx, span := t.tracer.Start(ctx, operation)
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (t *Tracer) TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
