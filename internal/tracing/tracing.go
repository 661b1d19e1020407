// Package tracing sets up the optional OTLP trace exporter. Disabled
// config yields a no-op tracer with zero overhead.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/discode-ai/discode/internal/config"
)

const serviceName = "discode"

// Provider owns the tracer provider lifecycle.
type Provider struct {
	tp  trace.TracerProvider
	sdk *sdktrace.TracerProvider
}

// Setup builds a provider from config. When tracing is disabled or the
// exporter cannot be built, a no-op provider is returned with the error.
func Setup(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	p := &Provider{tp: noop.NewTracerProvider()}
	if !cfg.Enabled || cfg.Endpoint == "" {
		return p, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpointHost(cfg.Endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return p, fmt.Errorf("build otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		res = resource.Default()
	}

	p.sdk = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	p.tp = p.sdk
	otel.SetTracerProvider(p.tp)
	return p, nil
}

// Tracer returns a named tracer from this provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk != nil {
		return p.sdk.Shutdown(ctx)
	}
	return nil
}

// endpointHost strips the scheme, which otlptracehttp does not accept.
func endpointHost(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}
