package tracing_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pacebench/internal/config"
	"github.com/torosent/pacebench/internal/pacer"
	"github.com/torosent/pacebench/internal/tracing"
	"github.com/torosent/pacebench/internal/tracker"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

var testSession = tracing.Session{RunID: "01J0000000000000000000TEST", Role: "client", Mode: "echo"}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{}, testSession)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled provider produced a recording span")
	}
}

func TestInitExportsWithEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{"grpc", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "grpc", SampleRate: 1, Insecure: true}},
		{"http", config.TracingConfig{Endpoint: "localhost:4318", Protocol: "http", SampleRate: 1, Insecure: true}},
		{"default protocol", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: 1, Insecure: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The exporters connect lazily, so no collector is needed.
			p, err := tracing.Init(context.Background(), tt.cfg, testSession)
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

			_, span := p.Tracer().Start(context.Background(), "test")
			span.End()
			if !span.SpanContext().IsValid() || !span.SpanContext().IsSampled() {
				t.Error("enabled provider did not sample a span at rate 1")
			}
		})
	}
}

func TestInitZeroSampleRateDropsSpans(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Insecure: true,
	}, testSession)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsSampled() {
		t.Error("span sampled at rate 0")
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
		Insecure: true,
	}, testSession)
	if err == nil {
		t.Fatal("Init() with unsupported protocol should return error")
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.5, 1.5} {
		_, err := tracing.Init(context.Background(), config.TracingConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: rate,
		}, testSession)
		if err == nil {
			t.Errorf("Init() with sample_rate=%g should return error", rate)
		}
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func TestStartRunSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	tests := []struct {
		name     string
		role     string
		mode     string
		endpoint string
		wantName string
		wantKind trace.SpanKind
	}{
		{"stream client", "client", "stream", "udp://127.0.0.1:4321", "client stream", trace.SpanKindClient},
		{"echo server", "server", "echo", "", "server echo", trace.SpanKindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracing.StartRunSpan(context.Background(), tracer, tt.role, tt.mode, tt.endpoint)
			span.End()

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Name != tt.wantName {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantName)
			}
			if spans[0].SpanKind != tt.wantKind {
				t.Errorf("span kind = %v, want %v", spans[0].SpanKind, tt.wantKind)
			}
			v, ok := attrValue(spans[0].Attributes, "pacebench.endpoint")
			if tt.endpoint == "" && ok {
				t.Error("unexpected endpoint attribute")
			}
			if tt.endpoint != "" && v.AsString() != tt.endpoint {
				t.Errorf("endpoint attribute = %q, want %q", v.AsString(), tt.endpoint)
			}
		})
	}
}

func TestWindowSpanCarriesReport(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	ctx, parent := tracing.StartRunSpan(context.Background(), tracer, "server", "stream", "")
	_, span := tracing.StartWindowSpan(ctx, tracer, "10.0.0.2:5000", "udp")
	tracing.EndSpan(span, nil, tracing.TrackerAttributes(tracker.Report{Count: 7, OutOfOrder: 1, TimedOut: true})...)
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	window := spans[0]
	if window.Name != "tracking window" {
		t.Fatalf("first ended span = %q, want tracking window", window.Name)
	}
	if window.Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("window span is not a child of the run span")
	}
	if v, _ := attrValue(window.Attributes, "pacebench.received"); v.AsInt64() != 7 {
		t.Errorf("received = %d, want 7", v.AsInt64())
	}
	if v, _ := attrValue(window.Attributes, "pacebench.timed_out"); !v.AsBool() {
		t.Error("timed_out = false, want true")
	}
}

func TestPacerAttributes(t *testing.T) {
	attrs := tracing.PacerAttributes(pacer.Summary{Mode: pacer.ModeEcho, Sent: 12, Limit: 10, Restarts: 2, RoundTrips: 10})
	if v, _ := attrValue(attrs, "pacebench.restarts"); v.AsInt64() != 2 {
		t.Errorf("restarts = %d, want 2", v.AsInt64())
	}
	if v, _ := attrValue(attrs, "pacebench.sent"); v.AsInt64() != 12 {
		t.Errorf("sent = %d, want 12", v.AsInt64())
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "test-error")
	tracing.EndSpan(span, context.DeadlineExceeded)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status code = %d, want %d (Error)", spans[0].Status.Code, codes.Error)
	}
}

func TestEndSpanOk(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "test-ok")
	tracing.EndSpan(span, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("span status code = %d, want %d (Ok)", spans[0].Status.Code, codes.Ok)
	}
}
