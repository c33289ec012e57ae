// Package telemetry provides one span per engine phase (csv_prep,
// csms_start, connect, drive, cleanup), gated behind OCPP_SIM_TRACING.
// Narrowed from the teacher's go.mod (which carries no OpenTelemetry
// dependency at all) to the stdout-exporter-only shape demonstrated by
// bc-dunia-mcpdrill's internal/otel/tracer.go — no OTLP collector
// dependency, since this simulator has nowhere to ship spans but a
// local terminal.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps a trace.Tracer plus its shutdown func. When disabled it
// is a no-op so callers never branch on whether tracing is on.
type Tracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// New builds a Tracer. When enabled is false, every span it produces is
// a no-op.
func New(ctx context.Context, enabled bool) (*Tracer, error) {
	if !enabled {
		tp := noop.NewTracerProvider()
		return &Tracer{
			tracer:   tp.Tracer("ocpp-sim"),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName("ocpp-sim"),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{
		tracer:   tp.Tracer("ocpp-sim"),
		shutdown: tp.Shutdown,
	}, nil
}

// StartPhase starts a span named for one engine phase (csv_prep,
// csms_start, connect, drive, cleanup).
func (t *Tracer) StartPhase(ctx context.Context, phase string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "engine."+phase)
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
