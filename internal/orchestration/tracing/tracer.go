package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "botweave"

// Config selects the span exporter and sampling for the process.
type Config struct {
	// Enabled turns span recording on. When false every stage gets a
	// no-op tracer.
	Enabled bool

	// Exporter is one of "none", "file", "stdout", or "otlp". "none"
	// records spans for in-process correlation without exporting them.
	Exporter string

	// FilePath is the JSONL output for the "file" exporter.
	FilePath string

	// OTLPEndpoint is the gRPC collector address for "otlp".
	OTLPEndpoint string

	// SampleRate is the sampled fraction of new traces, 0..1. Zero
	// means unset and samples everything.
	SampleRate float64

	// ServiceName names this process in exported spans.
	ServiceName string
}

// Provider holds the process tracer. The zero Exporter plus Enabled
// false is valid and yields no-op spans everywhere.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds the tracer provider from cfg and installs it as
// the otel global.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("disabled")}, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}

	opts := []sdktrace.TracerProviderOption{
		// NewSchemaless avoids the schema-version conflicts merging
		// with resource.Default() can raise across otel upgrades.
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	sdk := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(sdk)
	return &Provider{sdk: sdk, tracer: sdk.Tracer(name)}, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "none", "":
		return nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file exporter needs a file path")
		}
		return NewFileExporter(cfg.FilePath)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// Tracer returns the span factory handed to pipeline stages. Safe to
// call on a disabled provider.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes pending spans. Call once at process exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
