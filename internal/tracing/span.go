package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pacebench/internal/pacer"
	"github.com/torosent/pacebench/internal/tracker"
)

// StartRunSpan starts the span covering one client run or server session.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, role, mode, endpoint string) (context.Context, trace.Span) {
	kind := trace.SpanKindClient
	if role == "server" {
		kind = trace.SpanKindServer
	}
	ctx, span := tracer.Start(ctx, role+" "+mode, trace.WithSpanKind(kind))
	span.SetAttributes(
		attribute.String("pacebench.role", role),
		attribute.String("pacebench.mode", mode),
	)
	if endpoint != "" {
		span.SetAttributes(attribute.String("pacebench.endpoint", endpoint))
	}
	return ctx, span
}

// StartWindowSpan starts the span covering a single tracker's lifetime.
func StartWindowSpan(ctx context.Context, tracer trace.Tracer, peer, transport string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "tracking window", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("pacebench.peer", peer),
		attribute.String("pacebench.transport", transport),
	)
	return ctx, span
}

// PacerAttributes describes a pacer summary.
func PacerAttributes(s pacer.Summary) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("pacebench.sent", int64(s.Sent)),
		attribute.Int64("pacebench.limit", int64(s.Limit)),
		attribute.Int("pacebench.payload_size", s.PayloadSize),
		attribute.Int64("pacebench.round_trips", int64(s.RoundTrips)),
		attribute.Int("pacebench.restarts", s.Restarts),
	}
}

// TrackerAttributes describes a tracker report.
func TrackerAttributes(r tracker.Report) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("pacebench.received", r.Count),
		attribute.Int64("pacebench.bytes", r.Bytes),
		attribute.Int("pacebench.out_of_order", r.OutOfOrder),
		attribute.Int64("pacebench.elapsed_us", r.ElapsedMicros),
		attribute.Bool("pacebench.timed_out", r.TimedOut),
	}
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
