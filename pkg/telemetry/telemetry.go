// Package telemetry wires OpenTelemetry tracing for the API and its
// outbound scoring calls. With no OTLP endpoint configured, spans stay
// in-process so local runs need no collector.
package telemetry

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.25.0"
)

// Init configures the global tracer provider from OTEL_* env vars and
// returns its shutdown func. An unreachable exporter only fails startup when
// OTEL_REQUIRED=true; otherwise the gateway runs with local-only spans, since
// admission must not depend on the observability backend.
func Init(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "lumen-api"
	}
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	required := os.Getenv("OTEL_REQUIRED") == "true"
	sampler := parseSampler(os.Getenv("OTEL_TRACES_SAMPLER"), os.Getenv("OTEL_TRACES_SAMPLER_ARG"))

	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if endpoint == "" {
		return installProvider(res, sampler), nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithTimeout(time.Second * time.Duration(envInt("OTEL_EXPORTER_OTLP_TIMEOUT_SEC", 5))),
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if headers := parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		if required {
			return nil, err
		}
		log.Printf("otel exporter disabled: %v", err)
		return installProvider(res, sampler), nil
	}
	return installProvider(res, sampler, trace.WithBatcher(exporter)), nil
}

// installProvider builds the tracer provider, registers it globally with
// W3C trace-context propagation, and hands back its shutdown.
func installProvider(res *resource.Resource, sampler trace.Sampler, extra ...trace.TracerProviderOption) func(context.Context) error {
	opts := append([]trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(sampler),
	}, extra...)
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}

func parseSampler(name, arg string) trace.Sampler {
	ratio := 1.0
	if arg = strings.TrimSpace(arg); arg != "" {
		if val, err := strconv.ParseFloat(arg, 64); err == nil {
			ratio = min(max(val, 0), 1)
		}
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(ratio)
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	}
}

// HTTPMiddleware instruments inbound HTTP handlers.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "lumen-api"
	}
	return otelhttp.NewMiddleware(serviceName)
}

// InstrumentClient wraps the scoring-engine client's transport so each
// evaluation carries its trace through the upstream call.
func InstrumentClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = otelhttp.NewTransport(base)
	return client
}

// parseHeaders reads the W3C Correlation-Context style "k=v,k2=v2" format
// used by OTEL_EXPORTER_OTLP_HEADERS.
func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
