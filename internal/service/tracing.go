package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/otel"
)

const (
	// ServiceTracerName is the name used for the facade tracer
	ServiceTracerName = "github.com/runebook/runebook-gateway/service"
)

// startSpan starts a facade span, or returns the span already in ctx when tracing is disabled
func (g *Gateway) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, g.tracer, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// annotate records the cache outcome of a lookup on span
func annotate(span trace.Span, patch string, stale bool) {
	span.SetAttributes(
		otel.AttrPatchVersion.String(patch),
		otel.AttrCacheStale.Bool(stale),
	)
}
