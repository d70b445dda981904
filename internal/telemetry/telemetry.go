// Package telemetry wires the OpenTelemetry tracer provider. Database spans
// come from the pgx tracer attached to the pool; this package only owns the
// provider lifecycle.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"gitlab.com/yelinaung/approval-engine/internal/logger"
)

// Init installs the global tracer provider and returns its shutdown hook.
// With enabled=false it is a no-op and the returned hook does nothing.
func Init(ctx context.Context, enabled bool, serviceVersion string) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("approval-engine"),
		semconv.ServiceVersion(serviceVersion),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Log.Info().Msg("Telemetry enabled, exporting traces to stdout")
	return provider.Shutdown, nil
}
