package obs

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "hrportal"

// NewTracerProvider builds an SDK provider that writes finished spans as
// JSON to w. Spans are batched; Shutdown flushes them.
func NewTracerProvider(w io.Writer, b Build, env string) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("obs: trace exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", b.Version),
		attribute.String("vcs.revision", b.ShortRevision()),
		attribute.String("deployment.environment", env),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// StartTracing installs the provider globally along with W3C trace-context
// propagation. The returned function flushes pending spans.
func StartTracing(w io.Writer, b Build, env string) (func(context.Context) error, error) {
	tp, err := NewTracerProvider(w, b, env)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
